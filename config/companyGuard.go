package config

import (
	"context"
	"strings"

	"github.com/mmdatafocus/hubsync_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CompanyGuardPlugin scopes ledger queries/updates/deletes to the company code carried
// in the request context when the model has a company_code column.
//
// NOTE: Raw SQL is not scoped.
type CompanyGuardPlugin struct{}

func NewCompanyGuardPlugin() *CompanyGuardPlugin { return &CompanyGuardPlugin{} }

func (p *CompanyGuardPlugin) Name() string { return "company_guard" }

func (p *CompanyGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("company_guard:query", companyGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("company_guard:row", companyGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("company_guard:update", companyGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("company_guard:delete", companyGuardCallback); err != nil {
		return err
	}
	return nil
}

func companyGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil || db.Statement.Context == nil {
		return
	}
	companyCode := companyCodeFromContext(db.Statement.Context)
	if companyCode == "" || db.Statement.Schema == nil {
		return
	}

	hasCompanyCode := false
	for _, f := range db.Statement.Schema.Fields {
		if strings.EqualFold(f.DBName, "company_code") {
			hasCompanyCode = true
			break
		}
	}
	if !hasCompanyCode {
		return
	}
	if whereHasCompanyCode(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "company_code"},
				Value:  companyCode,
			},
		},
	})
}

func companyCodeFromContext(ctx context.Context) string {
	if v, ok := appctx.GetString(ctx, appctx.ContextKeyCompanyCode); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func whereHasCompanyCode(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasCompanyCode(e) {
			return true
		}
	}
	return false
}

func exprHasCompanyCode(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsCompanyCode(v.Column)
	case clause.IN:
		return colIsCompanyCode(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasCompanyCode(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		return strings.Contains(strings.ToLower(v.SQL), "company_code")
	default:
		return false
	}
}

func colIsCompanyCode(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "company_code")
	case clause.Column:
		return strings.EqualFold(c.Name, "company_code")
	default:
		return false
	}
}
