package models

// ISP is an internet service provider together with its plans and per-city coverage.
type ISP struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Logo          string         `json:"logo"` // URL or initials
	Tagline       string         `json:"tagline"`
	Rating        float64        `json:"rating"` // 0-5
	TotalReviews  int            `json:"total_reviews"`
	Plans         []Plan         `json:"plans"`
	Coverage      []Coverage     `json:"coverage"`
	Features      []string       `json:"features"`
	SpecialOffers []SpecialOffer `json:"special_offers"`
	BusinessPlans bool           `json:"business_plans"`
	Website       string         `json:"website"`
}

// CoverageFor returns the coverage record for a city, if the ISP serves it.
func (i *ISP) CoverageFor(cityID string) (Coverage, bool) {
	for _, c := range i.Coverage {
		if c.CityID == cityID {
			return c, true
		}
	}
	return Coverage{}, false
}

// CoveragePercentage returns the coverage percentage for a city, or 0 when uncovered.
func (i *ISP) CoveragePercentage(cityID string) float64 {
	if c, ok := i.CoverageFor(cityID); ok {
		return c.Percentage
	}
	return 0
}

// PlanByID looks up one of the ISP's plans.
func (i *ISP) PlanByID(planID string) (Plan, bool) {
	for _, p := range i.Plans {
		if p.ID == planID {
			return p, true
		}
	}
	return Plan{}, false
}

// PlanType distinguishes residential from business plans.
type PlanType string

const (
	PlanTypeResidential PlanType = "residential"
	PlanTypeBusiness    PlanType = "business"
	PlanTypeBoth        PlanType = "both" // filter value only, never set on a Plan
)

// Valid reports whether the plan type is a known filter value.
func (t PlanType) Valid() bool {
	switch t {
	case PlanTypeResidential, PlanTypeBusiness, PlanTypeBoth:
		return true
	}
	return false
}

// Matches reports whether a plan of type p passes the filter t.
func (t PlanType) Matches(p PlanType) bool {
	return t == PlanTypeBoth || t == p
}

// ConnectionType is the access technology of a plan.
type ConnectionType string

const (
	ConnectionFiber     ConnectionType = "Fiber"
	ConnectionCable     ConnectionType = "Cable"
	ConnectionDSL       ConnectionType = "DSL"
	ConnectionWireless  ConnectionType = "Wireless"
	ConnectionSatellite ConnectionType = "Satellite"
)

// ConnectionTypes lists every supported connection technology.
var ConnectionTypes = []ConnectionType{
	ConnectionFiber, ConnectionCable, ConnectionDSL, ConnectionWireless, ConnectionSatellite,
}

// Valid reports whether the connection type is known.
func (c ConnectionType) Valid() bool {
	for _, known := range ConnectionTypes {
		if c == known {
			return true
		}
	}
	return false
}

// Plan is a single subscription offer of an ISP.
type Plan struct {
	ID              string         `json:"id"`
	ISPID           string         `json:"isp_id"`
	Name            string         `json:"name"`
	Type            PlanType       `json:"type"`
	ConnectionType  ConnectionType `json:"connection_type"`
	Speed           float64        `json:"speed"`           // download, Mbps
	UploadSpeed     float64        `json:"upload_speed"`    // Mbps
	Price           float64        `json:"price"`           // monthly
	DataCap         *float64       `json:"data_cap"`        // GB, nil for unlimited
	ContractLength  int            `json:"contract_length"` // months, 0 for no contract
	InstallationFee float64        `json:"installation_fee"`
	EquipmentFee    float64        `json:"equipment_fee"` // monthly
	Features        []string       `json:"features,omitempty"`
}

// Unlimited reports whether the plan has no data cap.
func (p Plan) Unlimited() bool {
	return p.DataCap == nil
}

// SignalStrength is the display category of a coverage record.
type SignalStrength string

const (
	SignalExcellent SignalStrength = "excellent"
	SignalGood      SignalStrength = "good"
	SignalFair      SignalStrength = "fair"
	SignalPoor      SignalStrength = "poor"
)

// Coverage describes how much of a city an ISP serves. Percentage is
// authoritative for ranking; SignalStrength is a label only.
type Coverage struct {
	CityID         string         `json:"city_id"`
	CityName       string         `json:"city_name"`
	Percentage     float64        `json:"coverage_percentage"` // 0-100
	SignalStrength SignalStrength `json:"signal_strength"`
	AvailableAt    string         `json:"available_at"`
}

// SpecialOffer is a promotion attached to an ISP.
type SpecialOffer struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Discount    string `json:"discount"`
	ValidUntil  string `json:"valid_until"` // ISO date
	Terms       string `json:"terms"`
}

// ComparisonItem is a value snapshot of an ISP offer taken when it was added
// to the comparison. It does not follow later catalog changes.
type ComparisonItem struct {
	ISP      ISP      `json:"isp"`
	Plan     Plan     `json:"plan"`
	Coverage Coverage `json:"coverage"`
}

// NewComparisonItem deep-copies the slices of isp so the snapshot cannot
// alias catalog memory.
func NewComparisonItem(isp *ISP, plan Plan, coverage Coverage) ComparisonItem {
	snapshot := *isp
	snapshot.Plans = append([]Plan(nil), isp.Plans...)
	snapshot.Coverage = append([]Coverage(nil), isp.Coverage...)
	snapshot.Features = append([]string(nil), isp.Features...)
	snapshot.SpecialOffers = append([]SpecialOffer(nil), isp.SpecialOffers...)
	plan.Features = append([]string(nil), plan.Features...)
	return ComparisonItem{ISP: snapshot, Plan: plan, Coverage: coverage}
}
