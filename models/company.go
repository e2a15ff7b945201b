package models

type ProcessingMode string

const (
	ProcessingModeLive       ProcessingMode = "live"
	ProcessingModeOnboarding ProcessingMode = "onboarding"
)

type PayFrequency string

const (
	PayFrequencyWeekly      PayFrequency = "weekly"
	PayFrequencyBiWeekly    PayFrequency = "biweekly"
	PayFrequencySemiMonthly PayFrequency = "semimonthly"
	PayFrequencyMonthly     PayFrequency = "monthly"
)

type Feature string

const (
	FeatureHub              Feature = "hub"
	FeatureHubBasic         Feature = "hub_basic"
	FeatureHubAdministrator Feature = "hub_administrator"
)

type OrgGroupType string

const (
	OrgGroupTypeTeam       OrgGroupType = "team"
	OrgGroupTypeDepartment OrgGroupType = "department"
	OrgGroupTypeDivision   OrgGroupType = "division"
	OrgGroupTypeLocation   OrgGroupType = "location"
	OrgGroupTypeOther      OrgGroupType = "other"
)

// DepartmentLevel is the level number the platform treats as its department designation.
const DepartmentLevel = 1

type Address struct {
	Address1  string `json:"address1"`
	Address2  string `json:"address2,omitempty"`
	City      string `json:"city"`
	StateCode string `json:"state_code" validate:"omitempty,len=2"`
	ZipCode   string `json:"zip_code"`
}

// Company is keyed by CompanyCode. Upserts never delete; deactivation is Active=false.
type Company struct {
	CompanyCode         string         `json:"company_code" validate:"required,max=50"`
	CompanyName         string         `json:"company_name,omitempty"`
	FederalEIN          string         `json:"federal_ein,omitempty"`
	TimeZoneID          string         `json:"time_zone_id,omitempty"`
	PrimaryPhoneNumber  string         `json:"primary_phone_number,omitempty"`
	PrimaryAddress      *Address       `json:"primary_address,omitempty"`
	ProcessingMode      ProcessingMode `json:"processing_mode,omitempty" validate:"omitempty,oneof=live onboarding"`
	Active              *bool          `json:"active,omitempty"`
	DefaultPayFrequency PayFrequency   `json:"default_pay_frequency,omitempty"`
	FeatureList         []Feature      `json:"feature_list,omitempty"`
	Jurisdictions       []Jurisdiction `json:"jurisdictions,omitempty" validate:"dive"`
	OrgGroups           []OrgGroup     `json:"org_groups,omitempty" validate:"dive"`
	Employees           []Employee     `json:"employees,omitempty" validate:"dive"`
	Payrolls            []PayrollRun   `json:"payrolls,omitempty" validate:"dive"`
}

// Jurisdiction is keyed by (company, StateCode).
type Jurisdiction struct {
	StateCode string `json:"state_code" validate:"required,len=2"`
	TaxID     string `json:"tax_id"`
}

// OrgGroup is keyed by (company, OrgGroupCode).
type OrgGroup struct {
	OrgGroupCode string       `json:"org_group_code" validate:"required"`
	OrgGroupName string       `json:"org_group_name"`
	OrgType      OrgGroupType `json:"org_type" validate:"required"`
	LevelNumber  int          `json:"level_number" validate:"gte=1"`
	OrgItems     []OrgItem    `json:"org_items,omitempty" validate:"dive"`
}

type OrgItem struct {
	OrgItemCode string `json:"org_item_code" validate:"required"`
	OrgItemName string `json:"org_item_name"`
}

// OrgItemIndex returns group code -> item codes for the company's declared structure.
func (c Company) OrgItemIndex() map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(c.OrgGroups))
	for _, g := range c.OrgGroups {
		items := make(map[string]struct{}, len(g.OrgItems))
		for _, it := range g.OrgItems {
			items[it.OrgItemCode] = struct{}{}
		}
		out[g.OrgGroupCode] = items
	}
	return out
}
