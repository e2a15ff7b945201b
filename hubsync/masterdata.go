package hubsync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/hubsync_backend/models"
	"github.com/mmdatafocus/hubsync_backend/utils"
)

// MasterDataSynchronizer pushes companies, org structures and employees to the platform.
// Every payload is validated locally first; a ValidationError means no call was made.
type MasterDataSynchronizer struct {
	transport   Transport
	logger      *logrus.Logger
	strictOrg   bool
	phoneRegion string
}

func NewMasterDataSynchronizer(transport Transport, logger *logrus.Logger, strictOrgMembership bool, phoneRegion string) *MasterDataSynchronizer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if phoneRegion == "" {
		phoneRegion = "US"
	}
	return &MasterDataSynchronizer{
		transport:   transport,
		logger:      logger,
		strictOrg:   strictOrgMembership,
		phoneRegion: phoneRegion,
	}
}

// UpsertCompany sends the company record and its jurisdictions.
func (s *MasterDataSynchronizer) UpsertCompany(ctx context.Context, company models.Company) (res *models.Result, err error) {
	ctx, span := startSpan(ctx, opUpsertCompany, company.CompanyCode)
	defer func() { endSpan(span, err) }()

	payload := company
	payload.OrgGroups = nil
	payload.Employees = nil
	payload.Payrolls = nil
	if err := validateStruct(opUpsertCompany, company.CompanyCode, payload); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(payload.Jurisdictions))
	for _, j := range payload.Jurisdictions {
		state := strings.ToUpper(j.StateCode)
		if _, dup := seen[state]; dup {
			return nil, validationError(opUpsertCompany, company.CompanyCode, "jurisdiction %s declared twice", state)
		}
		seen[state] = struct{}{}
	}
	if err := canceled(ctx, opUpsertCompany, company.CompanyCode); err != nil {
		return nil, err
	}

	res, err = call(opUpsertCompany, company.CompanyCode, func() (*models.Result, error) {
		return s.transport.AddOrUpdateCompany(ctx, &payload)
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"op":            opUpsertCompany,
		"company_code":  company.CompanyCode,
		"jurisdictions": len(payload.Jurisdictions),
	}).Info("company upserted")
	return res, nil
}

// UpsertOrgStructure sends the company's org groups and their items.
func (s *MasterDataSynchronizer) UpsertOrgStructure(ctx context.Context, company models.Company) (res *models.Result, err error) {
	ctx, span := startSpan(ctx, opUpsertOrgStructure, company.CompanyCode)
	defer func() { endSpan(span, err) }()

	payload := models.Company{CompanyCode: company.CompanyCode, OrgGroups: company.OrgGroups}
	if err := validateStruct(opUpsertOrgStructure, company.CompanyCode, payload); err != nil {
		return nil, err
	}
	if err := ValidateOrgStructure(company.CompanyCode, company.OrgGroups); err != nil {
		return nil, err
	}
	if err := canceled(ctx, opUpsertOrgStructure, company.CompanyCode); err != nil {
		return nil, err
	}

	res, err = call(opUpsertOrgStructure, company.CompanyCode, func() (*models.Result, error) {
		return s.transport.AddOrUpdateOrgGroups(ctx, &payload)
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"op":           opUpsertOrgStructure,
		"company_code": company.CompanyCode,
		"org_groups":   len(payload.OrgGroups),
	}).Info("org structure upserted")
	return res, nil
}

// ValidateOrgStructure checks the level and type rules of one company's org groups:
// exactly one group at level 1, unique levels above 1, at most one group per type other
// than "other", unique group codes and unique item codes within each group.
func ValidateOrgStructure(companyCode string, groups []models.OrgGroup) error {
	if len(groups) == 0 {
		return validationError(opUpsertOrgStructure, companyCode, "no org groups declared")
	}
	var roots []string
	levels := make(map[int]string, len(groups))
	types := make(map[models.OrgGroupType]string, len(groups))
	codes := make(map[string]struct{}, len(groups))

	for _, g := range groups {
		key := companyCode + "/" + g.OrgGroupCode
		if _, dup := codes[g.OrgGroupCode]; dup {
			return validationError(opUpsertOrgStructure, key, "org group code declared twice")
		}
		codes[g.OrgGroupCode] = struct{}{}

		switch {
		case g.LevelNumber < models.DepartmentLevel:
			return validationError(opUpsertOrgStructure, key, "level number %d is below 1", g.LevelNumber)
		case g.LevelNumber == models.DepartmentLevel:
			roots = append(roots, g.OrgGroupCode)
		default:
			if other, dup := levels[g.LevelNumber]; dup {
				return validationError(opUpsertOrgStructure, key, "level number %d already used by %s", g.LevelNumber, other)
			}
			levels[g.LevelNumber] = g.OrgGroupCode
		}

		if g.OrgType != models.OrgGroupTypeOther {
			if other, dup := types[g.OrgType]; dup {
				return validationError(opUpsertOrgStructure, key, "org type %s already used by %s", g.OrgType, other)
			}
			types[g.OrgType] = g.OrgGroupCode
		}

		items := make(map[string]struct{}, len(g.OrgItems))
		for _, it := range g.OrgItems {
			if _, dup := items[it.OrgItemCode]; dup {
				return validationError(opUpsertOrgStructure, key+"/"+it.OrgItemCode, "org item code declared twice")
			}
			items[it.OrgItemCode] = struct{}{}
		}
	}

	switch len(roots) {
	case 0:
		return validationError(opUpsertOrgStructure, companyCode, "no org group has level number 1")
	case 1:
		return nil
	default:
		return validationError(opUpsertOrgStructure, companyCode, "more than one org group has level number 1: %s", strings.Join(roots, ", "))
	}
}

// UpsertEmployees sends the company's employees. Home org items are checked against
// company.OrgGroups when the call declares an org structure.
func (s *MasterDataSynchronizer) UpsertEmployees(ctx context.Context, company models.Company) (res *models.Result, err error) {
	ctx, span := startSpan(ctx, opUpsertEmployees, company.CompanyCode)
	defer func() { endSpan(span, err) }()

	prepared, err := s.PrepareEmployees(company)
	if err != nil {
		return nil, err
	}
	payload := models.Company{CompanyCode: company.CompanyCode, Employees: prepared}
	if err := canceled(ctx, opUpsertEmployees, company.CompanyCode); err != nil {
		return nil, err
	}

	res, err = call(opUpsertEmployees, company.CompanyCode, func() (*models.Result, error) {
		return s.transport.AddOrUpdateEmployees(ctx, &payload)
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"op":           opUpsertEmployees,
		"company_code": company.CompanyCode,
		"employees":    len(prepared),
	}).Info("employees upserted")
	return res, nil
}

// PrepareEmployees returns validated copies of the company's employees with SSN last
// four derived and phone numbers normalized. The input is left untouched.
func (s *MasterDataSynchronizer) PrepareEmployees(company models.Company) ([]models.Employee, error) {
	if company.CompanyCode == "" {
		return nil, validationError(opUpsertEmployees, "", "company code is required")
	}
	index := company.OrgItemIndex()
	seen := make(map[string]struct{}, len(company.Employees))
	out := make([]models.Employee, 0, len(company.Employees))

	for _, e := range company.Employees {
		key := company.CompanyCode + "/" + e.EmployeeNumber
		if _, dup := seen[e.EmployeeNumber]; dup {
			return nil, validationError(opUpsertEmployees, key, "employee number declared twice")
		}
		seen[e.EmployeeNumber] = struct{}{}

		last4, err := DeriveSSNLastFour(e.SSNFull, e.SSNLastFour)
		if err != nil {
			return nil, validationError(opUpsertEmployees, key, "%v", err)
		}
		e.SSNLastFour = last4
		if e.CellPhoneNumber != "" {
			if normalized, err := utils.NormalizePhoneNumber(e.CellPhoneNumber, s.phoneRegion); err == nil {
				e.CellPhoneNumber = normalized
			}
		}
		e.FeatureList = append([]models.Feature(nil), e.FeatureList...)
		e.HomeOrgItems = append([]models.HomeOrgItem(nil), e.HomeOrgItems...)

		if err := validateStruct(opUpsertEmployees, key, e); err != nil {
			return nil, err
		}
		if err := s.checkHomeOrgItems(key, e.HomeOrgItems, index); err != nil {
			return nil, err
		}
		if !e.CanAutoActivate() {
			s.logger.WithFields(logrus.Fields{
				"op":              opUpsertEmployees,
				"company_code":    company.CompanyCode,
				"employee_number": e.EmployeeNumber,
			}).Debug("employee lacks email, zip, birth date or ssn last four; platform will not auto activate")
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *MasterDataSynchronizer) checkHomeOrgItems(key string, refs []models.HomeOrgItem, index map[string]map[string]struct{}) error {
	groups := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if _, dup := groups[ref.OrgGroupCode]; dup {
			return validationError(opUpsertEmployees, key, "more than one home org item in group %s", ref.OrgGroupCode)
		}
		groups[ref.OrgGroupCode] = struct{}{}

		if len(index) == 0 {
			continue
		}
		items, ok := index[ref.OrgGroupCode]
		if ok {
			_, ok = items[ref.OrgItemCode]
		}
		if ok {
			continue
		}
		if s.strictOrg {
			return validationError(opUpsertEmployees, key, "home org item %s/%s is not declared", ref.OrgGroupCode, ref.OrgItemCode)
		}
		s.logger.WithFields(logrus.Fields{
			"op":             opUpsertEmployees,
			"entity_key":     key,
			"org_group_code": ref.OrgGroupCode,
			"org_item_code":  ref.OrgItemCode,
		}).Warn("home org item is not declared in the company org structure")
	}
	return nil
}

// DeriveSSNLastFour returns the last four characters of full when it has at least four.
// An explicit value that disagrees with the derived one is an error.
func DeriveSSNLastFour(full string, explicit string) (string, error) {
	full = strings.TrimSpace(full)
	explicit = strings.TrimSpace(explicit)
	if len(full) < 4 {
		return explicit, nil
	}
	derived := full[len(full)-4:]
	if explicit != "" && explicit != derived {
		return "", fmt.Errorf("ssn last four %q conflicts with %q derived from ssn", explicit, derived)
	}
	return derived, nil
}

// EmployeeFeatures returns the feature set of one employee: hub_basic when hub features
// are enabled or the employee is an admin, plus hub_administrator for admins.
func EmployeeFeatures(hubEnabled bool, isAdmin bool) []models.Feature {
	var out []models.Feature
	if hubEnabled || isAdmin {
		out = append(out, models.FeatureHubBasic)
	}
	if isAdmin {
		out = append(out, models.FeatureHubAdministrator)
	}
	return out
}

// EmployeeFromNewHire builds the employee record that links back to a platform new hire
// once the system of record has assigned it an employee number.
func EmployeeFromNewHire(nh models.NewHire, employeeNumber string) (models.Employee, error) {
	if employeeNumber == "" {
		return models.Employee{}, validationError(opUpsertEmployees, nh.NewHireID, "employee number is required")
	}
	e := models.Employee{
		EmployeeNumber:  employeeNumber,
		NewHireID:       nh.NewHireID,
		FirstName:       nh.LegalFirstName,
		LastName:        nh.LegalLastName,
		EmailAddress:    nh.EmailAddress,
		HireDate:        nh.HireDate,
		SSNFull:         nh.SSN,
		CellPhoneNumber: nh.CellPhoneNumber,
		PrimaryAddress:  nh.HomeAddress,
		Status:          models.EmploymentStatusActive,
		FeatureList:     []models.Feature{models.FeatureHubBasic},
	}
	if nh.BirthDate != "" {
		bd, err := parseDate(nh.BirthDate)
		if err != nil {
			return models.Employee{}, validationError(opUpsertEmployees, nh.NewHireID, "birth date %q: %v", nh.BirthDate, err)
		}
		e.BirthDate = &bd
	}
	return e, nil
}

func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(models.DateLayout, v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}
