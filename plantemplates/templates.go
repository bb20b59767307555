// Package plantemplates is the static catalog behind the plan engine and the
// timeline scheduler. New plan types and tier cadences are data here, not
// code elsewhere.
package plantemplates

import (
	"github.com/smokeyworks/smokey/clientstore"
	"github.com/smokeyworks/smokey/ctaflow"
	"github.com/smokeyworks/smokey/libauth"
)

// Known plan types.
const (
	PlanTechnicalAudit    = "technical_audit"
	PlanContentRefresh    = "content_refresh"
	PlanStructureOverhaul = "structure_overhaul"
	PlanFollowupAudit     = "followup_audit"
)

// FailureAction decides what the plan engine does when a checkpoint fails.
type FailureAction string

const (
	FailureBranch FailureAction = "branch"
	FailurePause  FailureAction = "pause"
	FailureAbort  FailureAction = "abort"
)

// FailurePolicy is attached to the plan-type template, not the checkpoint.
type FailurePolicy struct {
	Action FailureAction
	// BranchTo names the remediation plan type when Action is branch.
	BranchTo string
}

// Step is one tool invocation in a plan's materialized task list.
type Step struct {
	Tool               string
	RequiredCapability libauth.Capability
}

// PlanTemplate fixes the ordered tool steps and failure policy of one plan
// type.
type PlanTemplate struct {
	Type             string
	Objective        string
	Steps            []Step
	OnCheckpointFail FailurePolicy
	// ReassessAfterDays sets the cooldown before a completed plan resurfaces
	// in the reassessment queue. Zero means never.
	ReassessAfterDays int
}

var planCatalog = map[string]PlanTemplate{
	PlanTechnicalAudit: {
		Type:      PlanTechnicalAudit,
		Objective: "Full technical audit with prioritized findings",
		Steps: []Step{
			{Tool: ctaflow.ToolAudit, RequiredCapability: libauth.CapabilityOperator},
			{Tool: ctaflow.ToolBurnt, RequiredCapability: libauth.CapabilityOperator},
		},
		OnCheckpointFail:  FailurePolicy{Action: FailurePause},
		ReassessAfterDays: 60,
	},
	PlanContentRefresh: {
		Type:      PlanContentRefresh,
		Objective: "Refresh underperforming content from audit findings",
		Steps: []Step{
			{Tool: ctaflow.ToolAudit, RequiredCapability: libauth.CapabilityOperator},
			{Tool: ctaflow.ToolBurnt, RequiredCapability: libauth.CapabilityOperator},
			{Tool: ctaflow.ToolContent, RequiredCapability: libauth.CapabilityOperator},
		},
		OnCheckpointFail:  FailurePolicy{Action: FailureBranch, BranchTo: PlanFollowupAudit},
		ReassessAfterDays: 90,
	},
	PlanStructureOverhaul: {
		Type:      PlanStructureOverhaul,
		Objective: "Restructure site architecture from prioritized findings",
		Steps: []Step{
			{Tool: ctaflow.ToolAudit, RequiredCapability: libauth.CapabilityOperator},
			{Tool: ctaflow.ToolBurnt, RequiredCapability: libauth.CapabilityOperator},
			{Tool: ctaflow.ToolStructure, RequiredCapability: libauth.CapabilityOperator},
		},
		OnCheckpointFail:  FailurePolicy{Action: FailureBranch, BranchTo: PlanFollowupAudit},
		ReassessAfterDays: 90,
	},
	PlanFollowupAudit: {
		Type:      PlanFollowupAudit,
		Objective: "Verify durability of previously completed work",
		Steps: []Step{
			{Tool: ctaflow.ToolAudit, RequiredCapability: libauth.CapabilityOperator},
		},
		OnCheckpointFail:  FailurePolicy{Action: FailurePause},
		ReassessAfterDays: 30,
	},
}

// Get returns the template for a plan type.
func Get(planType string) (PlanTemplate, bool) {
	t, ok := planCatalog[planType]
	return t, ok
}

// Types returns all known plan types in a stable order.
func Types() []string {
	return []string{PlanTechnicalAudit, PlanContentRefresh, PlanStructureOverhaul, PlanFollowupAudit}
}

// PhaseTemplate is one dated entry of a tier's cadence. MonthOffset is
// relative to the contract start; offset 0 lands on the start date itself.
type PhaseTemplate struct {
	Name        string
	MonthOffset int
	PlanType    string
	Description string
}

var tierTimelines = map[clientstore.PlanTier][]PhaseTemplate{
	clientstore.TierStarter: {
		{Name: "Kickoff Technical Audit", MonthOffset: 0, PlanType: PlanTechnicalAudit, Description: "Baseline audit at contract start"},
		{Name: "Content Refresh", MonthOffset: 3, PlanType: PlanContentRefresh, Description: "First content pass from audit findings"},
		{Name: "Mid-Contract Audit", MonthOffset: 6, PlanType: PlanFollowupAudit, Description: "Verify first-half results"},
		{Name: "Structure Overhaul", MonthOffset: 9, PlanType: PlanStructureOverhaul, Description: "Architecture pass in the final quarter"},
	},
	clientstore.TierGrowth: {
		{Name: "Kickoff Technical Audit", MonthOffset: 0, PlanType: PlanTechnicalAudit, Description: "Baseline audit at contract start"},
		{Name: "Content Refresh", MonthOffset: 2, PlanType: PlanContentRefresh, Description: "First content pass"},
		{Name: "Structure Overhaul", MonthOffset: 4, PlanType: PlanStructureOverhaul, Description: "Architecture pass"},
		{Name: "Mid-Contract Audit", MonthOffset: 6, PlanType: PlanFollowupAudit, Description: "Verify first-half results"},
		{Name: "Second Content Refresh", MonthOffset: 8, PlanType: PlanContentRefresh, Description: "Second content pass"},
		{Name: "Closing Audit", MonthOffset: 10, PlanType: PlanFollowupAudit, Description: "Pre-renewal verification"},
	},
	clientstore.TierScale: {
		{Name: "Kickoff Technical Audit", MonthOffset: 0, PlanType: PlanTechnicalAudit, Description: "Baseline audit at contract start"},
		{Name: "Content Refresh", MonthOffset: 1, PlanType: PlanContentRefresh, Description: "First content pass"},
		{Name: "Structure Overhaul", MonthOffset: 3, PlanType: PlanStructureOverhaul, Description: "First architecture pass"},
		{Name: "Quarterly Audit", MonthOffset: 5, PlanType: PlanFollowupAudit, Description: "Verify first-half results"},
		{Name: "Second Content Refresh", MonthOffset: 6, PlanType: PlanContentRefresh, Description: "Second content pass"},
		{Name: "Second Structure Overhaul", MonthOffset: 7, PlanType: PlanStructureOverhaul, Description: "Second architecture pass"},
		{Name: "Third Content Refresh", MonthOffset: 9, PlanType: PlanContentRefresh, Description: "Third content pass"},
		{Name: "Closing Audit", MonthOffset: 11, PlanType: PlanFollowupAudit, Description: "Pre-renewal verification"},
	},
}

// Timeline returns the phase cadence for a tier.
func Timeline(tier clientstore.PlanTier) ([]PhaseTemplate, bool) {
	t, ok := tierTimelines[tier]
	return t, ok
}
