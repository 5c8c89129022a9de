// Package precheck defines the structured onboarding data each party gave
// before negotiation. It is sent to the clause revision service as context
// alongside the OCR-extracted contract document.
package precheck

// LeaseKind distinguishes the Korean lease deposit structures.
type LeaseKind string

const (
	LeaseJeonse LeaseKind = "jeonse" // lump-sum deposit, no monthly rent
	LeaseWolse  LeaseKind = "wolse"  // smaller deposit plus monthly rent
)

// OwnerPrecheck holds the property owner's deposit terms and restoration
// obligations.
type OwnerPrecheck struct {
	LeaseKind          LeaseKind `json:"lease_kind"`
	Deposit            int64     `json:"deposit"`
	MonthlyRent        int64     `json:"monthly_rent,omitempty"`
	MaintenanceFee     int64     `json:"maintenance_fee,omitempty"`
	RestoreCategories  []string  `json:"restore_categories,omitempty"`
	RestoreObligations string    `json:"restore_obligations,omitempty"`
}

// TenantPrecheck holds the tenant's living-condition answers.
type TenantPrecheck struct {
	HasPet          bool   `json:"has_pet"`
	ResidentCount   int    `json:"resident_count"`
	PlansToSmoke    bool   `json:"plans_to_smoke"`
	NeedsRepainting bool   `json:"needs_repainting"`
	MoveInNotes     string `json:"move_in_notes,omitempty"`
}

// DocumentData is the OCR-extracted content of the uploaded contract
// document.
type DocumentData struct {
	Address      string            `json:"address"`
	LessorName   string            `json:"lessor_name"`
	LesseeName   string            `json:"lessee_name"`
	LeaseStart   string            `json:"lease_start,omitempty"`
	LeaseEnd     string            `json:"lease_end,omitempty"`
	RawText      string            `json:"raw_text,omitempty"`
	ExtraFields  map[string]string `json:"extra_fields,omitempty"`
}

// RevisionContext bundles everything the revision service needs beyond the
// clause itself. Captured once at negotiation creation and reused for every
// revision call.
type RevisionContext struct {
	ContractID string         `json:"contract_id"`
	Document   DocumentData   `json:"document"`
	Owner      OwnerPrecheck  `json:"owner_precheck"`
	Tenant     TenantPrecheck `json:"tenant_precheck"`
}
