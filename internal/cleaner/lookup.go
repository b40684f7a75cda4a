package cleaner

// Location is what the reference table knows about an owner.
type Location struct {
	DocID        string
	AWCName      string
	BlockName    string
	DistrictName string
	StateName    string
}

// Lookup resolves owners against read-only reference data. A miss is
// reported with ok=false and is never an error.
type Lookup interface {
	ResolveOwner(ownerID string) (loc Location, ok bool)
	ResolveOwnerType(id string) (ownerType string, ok bool)
}

// Columns attached by the location step.
const (
	AWCNameField      = "awc_name"
	BlockNameField    = "block_name"
	DistrictNameField = "district_name"
	StateNameField    = "state_name"
	OwnerTypeField    = "location_type"
)
