package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"

	"missionline/internal/domain"
	"missionline/internal/engine"
	"missionline/internal/repo"
)

type CreateMissionRequest struct {
	Objective string          `json:"objective" example:"calc: 6 * 7" doc:"What the mission should accomplish"`
	Source    string          `json:"source,omitempty" example:"cli:alice" doc:"Origin of the proposal; defaults to the authenticated actor"`
	Metadata  domain.Metadata `json:"metadata,omitempty"`
}

type PlanRequest struct {
	Summary string   `json:"summary,omitempty"`
	Steps   []string `json:"steps,omitempty"`
}

type MissionListResponse struct {
	Items []domain.MissionProjection `json:"items"`
}

type ApproveResponse struct {
	MissionID       string        `json:"mission_id"`
	Status          domain.Status `json:"status"`
	AlreadyApproved bool          `json:"already_approved,omitempty"`
}

func approveResponse(res engine.ApproveResult) ApproveResponse {
	return ApproveResponse{
		MissionID:       res.MissionID,
		Status:          res.Status,
		AlreadyApproved: res.AlreadyApproved,
	}
}

type ExecuteResponse struct {
	MissionID      string        `json:"mission_id"`
	Status         domain.Status `json:"status"`
	ToolUsed       string        `json:"tool_used,omitempty"`
	ResultSummary  string        `json:"result_summary,omitempty"`
	Error          string        `json:"error,omitempty"`
	AlreadyRunning bool          `json:"already_running,omitempty"`
	AlreadyDone    bool          `json:"already_done,omitempty"`
}

func executeResponse(res engine.ExecuteResult) ExecuteResponse {
	return ExecuteResponse{
		MissionID:      res.MissionID,
		Status:         res.Status,
		ToolUsed:       res.ToolUsed,
		ResultSummary:  res.ResultSummary,
		Error:          res.Error,
		AlreadyRunning: res.AlreadyRunning,
		AlreadyDone:    res.AlreadyDone,
	}
}

type StreamTailResponse struct {
	Stream  string            `json:"stream"`
	Records []json.RawMessage `json:"records"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id" example:"alice"`
	Name    string `json:"name,omitempty" example:"ci"`
}

// APIKeyResponse carries the plaintext key exactly once, at creation.
type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at"`
}

// MintAPIKey generates a random key, stores its hash, and returns both the
// stored row and the plaintext secret.
func MintAPIKey(ctx context.Context, r repo.Repo, actorID, name string) (domain.APIKey, string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	secret := "mlk_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:      uuid.New().String(),
		ActorID: actorID,
		Name:    name,
		KeyHash: repo.HashAPIKey(secret),
	}
	if err := r.InsertAPIKey(ctx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	stored, err := r.GetAPIKeyByHash(ctx, key.KeyHash)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	return stored, secret, nil
}
