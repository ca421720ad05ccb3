package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"omtobe/internal/domain"
	"omtobe/internal/engine"
	"omtobe/internal/migrate"
)

type output[T any] struct {
	Body T `json:"body"`
}

type userPath struct {
	UserID string `path:"user_id"`
}

type historyInput struct {
	UserID string `path:"user_id"`
	Limit  int    `query:"limit" minimum:"0" doc:"Maximum rows to return; defaults to 100, capped at 500"`
}

type SweepResponse struct {
	Reset int `json:"reset"`
}

var standardErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusInternalServerError,
}

func errorsWith(extra ...int) []int {
	return append(append([]int{}, standardErrors...), extra...)
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:                 u.ID,
		Email:              u.Email,
		Timezone:           u.Timezone,
		HealthKitConnected: u.HealthKitToken != "",
		CalendarConnected:  u.CalendarToken != "",
		CreatedAt:          u.CreatedAt,
	}
}

func registerHealth(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*output[HealthResponse], error) {
		now := time.Now
		if e.Now != nil {
			now = e.Now
		}
		out := HealthResponse{
			Status:    "ok",
			Version:   Version,
			Timestamp: now().UTC().Format(time.RFC3339),
		}
		if e.DB != nil {
			v, err := migrate.Current(e.DB)
			if err != nil {
				return nil, newAPIError(http.StatusServiceUnavailable, "database_unavailable", "database unavailable", nil)
			}
			out.SchemaVersion = v
		}
		return &output[HealthResponse]{Body: out}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Register a user and start their first cycle",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*output[UserResponse], error) {
		u, err := e.CreateUser(ctx, engine.CreateUserOptions{
			ID:             strings.TrimSpace(input.Body.ID),
			Email:          input.Body.Email,
			Timezone:       input.Body.Timezone,
			HealthKitToken: input.Body.HealthKitToken,
			CalendarToken:  input.Body.CalendarToken,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &output[UserResponse]{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}",
		Summary:     "Get user",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *userPath) (*output[UserResponse], error) {
		p, perr := principalFromRequest(ctx)
		if perr != nil {
			return nil, perr
		}
		u, err := e.GetUser(ctx, p.engine(), input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[UserResponse]{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-user-sources",
		Method:      http.MethodPut,
		Path:        "/users/{user_id}/sources",
		Summary:     "Connect or disconnect HealthKit and calendar sources",
		Description: "Omitted fields are left unchanged; an empty string disconnects the source.",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		UserID string               `path:"user_id"`
		Body   UpdateSourcesRequest `json:"body"`
	}) (*output[UserResponse], error) {
		p, perr := principalFromRequest(ctx)
		if perr != nil {
			return nil, perr
		}
		u, err := e.ConnectSources(ctx, p.engine(), input.UserID, input.Body.HealthKitToken, input.Body.CalendarToken)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[UserResponse]{Body: userResponse(u)}, nil
	})
}

func registerState(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-state",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/state",
		Summary:     "Current cycle state",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *userPath) (*output[engine.StateSummary], error) {
		p, perr := principalFromRequest(ctx)
		if perr != nil {
			return nil, perr
		}
		st, err := e.State(ctx, p.engine(), input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[engine.StateSummary]{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-brake",
		Method:      http.MethodPost,
		Path:        "/users/{user_id}/state/check",
		Summary:     "Evaluate the brake gate against the connected sources",
		Errors:      errorsWith(http.StatusUnprocessableEntity, http.StatusBadGateway),
	}, func(ctx context.Context, input *userPath) (*output[engine.BrakeCheck], error) {
		p, perr := principalFromRequest(ctx)
		if perr != nil {
			return nil, perr
		}
		res, err := e.CheckBrake(ctx, p.engine(), input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[engine.BrakeCheck]{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "evaluate-brake",
		Method:      http.MethodPost,
		Path:        "/users/{user_id}/state/evaluate",
		Summary:     "Evaluate the brake gate against supplied inputs",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		UserID string          `path:"user_id"`
		Body   EvaluateRequest `json:"body"`
	}) (*output[engine.BrakeCheck], error) {
		p, perr := principalFromRequest(ctx)
		if perr != nil {
			return nil, perr
		}
		res, err := e.Evaluate(ctx, p.engine(), input.UserID, input.Body.inputs())
		if err != nil {
			return nil, handleError(err)
		}
		return &output[engine.BrakeCheck]{Body: res}, nil
	})
}

func registerDecisions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-decision",
		Method:        http.MethodPost,
		Path:          "/users/{user_id}/decisions",
		Summary:       "Record a brake screen response",
		DefaultStatus: http.StatusCreated,
		Errors:        standardErrors,
	}, func(ctx context.Context, input *struct {
		UserID string          `path:"user_id"`
		Body   DecisionRequest `json:"body"`
	}) (*output[engine.DecisionResult], error) {
		p, perr := principalFromRequest(ctx)
		if perr != nil {
			return nil, perr
		}
		res, err := e.RecordDecision(ctx, p.engine(), input.UserID, input.Body.DecisionType)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[engine.DecisionResult]{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-decisions",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/decisions",
		Summary:     "Decision history, newest first",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *historyInput) (*output[[]domain.DecisionLog], error) {
		p, perr := principalFromRequest(ctx)
		if perr != nil {
			return nil, perr
		}
		logs, err := e.DecisionHistory(ctx, p.engine(), input.UserID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[[]domain.DecisionLog]{Body: nonNilSlice(logs)}, nil
	})
}

func registerReflections(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-reflection",
		Method:        http.MethodPost,
		Path:          "/users/{user_id}/reflections",
		Summary:       "Record the day 7 reflection and start a new cycle",
		DefaultStatus: http.StatusCreated,
		Errors:        errorsWith(http.StatusConflict),
	}, func(ctx context.Context, input *struct {
		UserID string            `path:"user_id"`
		Body   ReflectionRequest `json:"body"`
	}) (*output[engine.ReflectionResult], error) {
		p, perr := principalFromRequest(ctx)
		if perr != nil {
			return nil, perr
		}
		res, err := e.RecordReflection(ctx, p.engine(), input.UserID, input.Body.Response)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[engine.ReflectionResult]{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reflections",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/reflections",
		Summary:     "Reflection history, newest first",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *historyInput) (*output[[]domain.ReflectionLog], error) {
		p, perr := principalFromRequest(ctx)
		if perr != nil {
			return nil, perr
		}
		logs, err := e.ReflectionHistory(ctx, p.engine(), input.UserID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[[]domain.ReflectionLog]{Body: nonNilSlice(logs)}, nil
	})
}

func registerCycle(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "reset-cycle",
		Method:      http.MethodPost,
		Path:        "/users/{user_id}/cycle/reset",
		Summary:     "Start a new cycle now",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *userPath) (*output[engine.StateSummary], error) {
		p, perr := principalFromRequest(ctx)
		if perr != nil {
			return nil, perr
		}
		st, err := e.ResetCycle(ctx, p.engine(), input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[engine.StateSummary]{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sweep-cycles",
		Method:      http.MethodPost,
		Path:        "/cycles/sweep",
		Summary:     "Reset every cycle whose boundary has passed",
		Description: "Admin only. The scheduler runs the same sweep periodically.",
		Errors:      standardErrors,
	}, func(ctx context.Context, _ *struct{}) (*output[SweepResponse], error) {
		p, perr := principalFromRequest(ctx)
		if perr != nil {
			return nil, perr
		}
		n, err := e.SweepCycles(ctx, p.engine())
		if err != nil {
			return nil, handleError(err)
		}
		return &output[SweepResponse]{Body: SweepResponse{Reset: n}}, nil
	})
}

func registerKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/users/{user_id}/api-keys",
		Summary:       "Issue an API key",
		Description:   "The plaintext key is returned once.",
		DefaultStatus: http.StatusCreated,
		Errors:        standardErrors,
	}, func(ctx context.Context, input *struct {
		UserID string              `path:"user_id"`
		Body   CreateAPIKeyRequest `json:"body"`
	}) (*output[engine.CreatedAPIKey], error) {
		p, perr := principalFromRequest(ctx)
		if perr != nil {
			return nil, perr
		}
		key, err := e.CreateAPIKey(ctx, p.engine(), input.UserID, input.Body.Name, input.Body.Roles)
		if err != nil {
			return nil, handleError(err)
		}
		key.Roles = nonNilSlice(key.Roles)
		return &output[engine.CreatedAPIKey]{Body: key}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/api-keys",
		Summary:     "List API keys",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *userPath) (*output[[]domain.APIKey], error) {
		p, perr := principalFromRequest(ctx)
		if perr != nil {
			return nil, perr
		}
		keys, err := e.ListAPIKeys(ctx, p.engine(), input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		for i := range keys {
			keys[i].Roles = nonNilSlice(keys[i].Roles)
		}
		return &output[[]domain.APIKey]{Body: nonNilSlice(keys)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-api-key",
		Method:        http.MethodDelete,
		Path:          "/users/{user_id}/api-keys/{key_id}",
		Summary:       "Revoke an API key",
		DefaultStatus: http.StatusNoContent,
		Errors:        standardErrors,
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
		KeyID  string `path:"key_id"`
	}) (*struct{}, error) {
		p, perr := principalFromRequest(ctx)
		if perr != nil {
			return nil, perr
		}
		if err := e.DeleteAPIKey(ctx, p.engine(), input.UserID, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "whoami",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Authenticated principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*output[WhoAmIResponse], error) {
		p, perr := principalFromRequest(ctx)
		if perr != nil {
			return nil, perr
		}
		return &output[WhoAmIResponse]{Body: WhoAmIResponse{
			UserID: p.UserID,
			Roles:  nonNilSlice(p.Roles),
			Source: p.Source,
		}}, nil
	})
}

// registerDevAuth mounts a token minting endpoint for local development.
func registerDevAuth(api huma.API, e engine.Engine, cfg AuthConfig) {
	if !cfg.DevLoginEnabled {
		return
	}
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "Mint a development token",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*output[DevLoginResponse], error) {
		userID := strings.TrimSpace(input.Body.UserID)
		if userID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id required", nil)
		}
		if _, err := e.Repo.GetUser(ctx, userID); err != nil {
			return nil, handleError(err)
		}
		// token expiry is checked against the wall clock
		now := time.Now().UTC()
		token, err := SignToken(cfg.JWTSecret, userID, input.Body.Roles, devTokenTTL, now)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		cfg.logger().Info("dev token issued", "user_id", userID)
		return &output[DevLoginResponse]{Body: DevLoginResponse{
			Token:     token,
			ExpiresAt: now.Add(devTokenTTL).Format(time.RFC3339),
		}}, nil
	})
}
