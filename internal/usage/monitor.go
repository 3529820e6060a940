package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"llm_proxy/internal/models"
	"llm_proxy/internal/utils"
)

// WorkspaceStore is the slice of the workspace repository the monitor
// needs.
type WorkspaceStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error)
	UpdateUsageLimit(ctx context.Context, id uuid.UUID, limit float64, enabled bool) error
}

// LedgerStore is the slice of the usage repository the monitor needs.
type LedgerStore interface {
	Insert(ctx context.Context, record *models.UsageRecord) error
	SumCostForMonth(ctx context.Context, workspaceID uuid.UUID, monthYear string) (float64, error)
}

// QuotaDecision is the outcome of a quota check. A denial is not an
// error: Allowed is false and Message explains why, while the error
// return is reserved for infrastructure failures.
type QuotaDecision struct {
	Allowed bool
	Usage   *models.WorkspaceUsage
	Message string
}

// Monitor enforces monthly spend quotas against the usage ledger.
//
// Enforcement is soft: the check reads the ledger sum before the
// request runs, and the request's own cost lands only afterwards, so
// concurrent requests near the boundary can overshoot the limit by a
// few in-flight requests' worth. The limit is a cost control, not a
// hard cap.
type Monitor struct {
	workspaces WorkspaceStore
	ledger     LedgerStore
	logger     *utils.Logger

	// now is injectable for tests
	now func() time.Time
}

// NewMonitor creates a new usage monitor
func NewMonitor(workspaces WorkspaceStore, ledger LedgerStore, logger *utils.Logger) *Monitor {
	return &Monitor{
		workspaces: workspaces,
		ledger:     ledger,
		logger:     logger,
		now:        time.Now,
	}
}

// CheckWorkspaceQuota decides whether a workspace may spend more this
// month. A workspace with enforcement disabled is always allowed. The
// workspace is over its limit only when accrued cost strictly exceeds
// the limit, so a workspace exactly at its limit still passes.
func (m *Monitor) CheckWorkspaceQuota(ctx context.Context, workspaceID uuid.UUID) (QuotaDecision, error) {
	workspace, err := m.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return QuotaDecision{}, fmt.Errorf("quota check: %w", err)
	}

	usage, err := m.usageFor(ctx, workspace)
	if err != nil {
		return QuotaDecision{}, err
	}

	if !workspace.UsageLimitEnabled {
		return QuotaDecision{Allowed: true, Usage: usage}, nil
	}

	if usage.IsOverLimit {
		return QuotaDecision{
			Allowed: false,
			Usage:   usage,
			Message: fmt.Sprintf("monthly usage limit of $%.2f exceeded ($%.2f used)", usage.Limit, usage.TotalCost),
		}, nil
	}

	return QuotaDecision{Allowed: true, Usage: usage}, nil
}

// GetWorkspaceUsage returns the current month's usage view for a
// workspace.
func (m *Monitor) GetWorkspaceUsage(ctx context.Context, workspaceID uuid.UUID) (*models.WorkspaceUsage, error) {
	workspace, err := m.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}
	return m.usageFor(ctx, workspace)
}

// RecordUsage appends one completed upstream call to the ledger. The
// ID, timestamp and month bucket are filled in when the caller left
// them zero.
func (m *Monitor) RecordUsage(ctx context.Context, record *models.UsageRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = m.now().UTC()
	}
	if record.MonthYear == "" {
		record.MonthYear = models.MonthYear(record.CreatedAt)
	}

	if err := m.ledger.Insert(ctx, record); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}

	m.logger.Debug("usage recorded",
		"workspace_id", record.WorkspaceID,
		"model", record.ModelName,
		"cost_usd", record.EstimatedCost,
	)
	return nil
}

// UpdateWorkspaceLimit changes a workspace's monthly limit. The value
// is not validated here; a negative limit is stored as-is and simply
// denies every request once enforcement is on.
func (m *Monitor) UpdateWorkspaceLimit(ctx context.Context, workspaceID uuid.UUID, limit float64, enabled bool) error {
	if err := m.workspaces.UpdateUsageLimit(ctx, workspaceID, limit, enabled); err != nil {
		return fmt.Errorf("update limit: %w", err)
	}

	m.logger.Info("workspace limit updated",
		"workspace_id", workspaceID,
		"limit_usd", limit,
		"enabled", enabled,
	)
	return nil
}

func (m *Monitor) usageFor(ctx context.Context, workspace *models.Workspace) (*models.WorkspaceUsage, error) {
	monthYear := models.MonthYear(m.now())

	totalCost, err := m.ledger.SumCostForMonth(ctx, workspace.ID, monthYear)
	if err != nil {
		return nil, fmt.Errorf("sum monthly usage: %w", err)
	}

	usage := &models.WorkspaceUsage{
		WorkspaceID:  workspace.ID,
		MonthYear:    monthYear,
		TotalCost:    totalCost,
		Limit:        workspace.UsageLimitMonthly,
		LimitEnabled: workspace.UsageLimitEnabled,
	}
	if workspace.UsageLimitMonthly > 0 {
		usage.PercentageUsed = totalCost / workspace.UsageLimitMonthly * 100
	}
	usage.IsOverLimit = workspace.UsageLimitEnabled && totalCost > workspace.UsageLimitMonthly

	return usage, nil
}
