package server

import (
	"tierbot/internal/domain"
	"time"
)

type TierRecord struct {
	MemberID    string `json:"member_id"`
	DisplayName string `json:"display_name"`
	Username    string `json:"username"`
	Region      string `json:"region"`
	Tier        string `json:"tier"`
	LastUpdated string `json:"last_updated"`
}

type GiveTierRequest struct {
	Actor    string `json:"actor"`
	MemberID string `json:"member_id"`
	Tier     string `json:"tier"`
	Region   string `json:"region,omitempty"`
	Username string `json:"username,omitempty"`
}

type GiveTierResponse struct {
	Record TierRecord `json:"record"`
}

type RemoveTierRequest struct {
	Actor    string `json:"actor"`
	MemberID string `json:"member_id"`
	Tier     string `json:"tier"`
}

type RemoveTierResponse struct {
	// Record is nil when the member has no tier left.
	Record *TierRecord `json:"record,omitempty"`
}

type GetTierRequest struct {
	MemberID string `json:"member_id"`
}

type GetTierResponse struct {
	Record TierRecord `json:"record"`
}

type ListTiersRequest struct {
	Reconcile bool `json:"reconcile"`
}

type ListTiersResponse struct {
	Records []TierRecord `json:"records"`
}

type ReconcileRequest struct{}

type ReconcileResponse struct {
	Changed int `json:"changed"`
}

func toRecord(r domain.TierRecord) TierRecord {
	return TierRecord{
		MemberID:    r.MemberID,
		DisplayName: r.DisplayName,
		Username:    r.GameUsername,
		Region:      r.Region,
		Tier:        r.Tier,
		LastUpdated: r.LastUpdated.UTC().Format(time.RFC3339),
	}
}
