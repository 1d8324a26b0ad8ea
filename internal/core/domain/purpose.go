package domain

import "slices"

type purposeRule struct {
	tag    PurposeTag
	reason string
	match  func(t *Table) bool
}

// purposeRules is evaluated in order; the first match wins.
var purposeRules = []purposeRule{
	{
		tag:    PurposeEmployee,
		reason: "employee-identity naming",
		match: func(t *Table) bool {
			if nameHasAny(t.Name, employeeWords) {
				return true
			}
			for _, pk := range t.PrimaryKey {
				if nameIs(pk, "emp_id", "employee_id") {
					return true
				}
			}
			_, first := t.Column("first_name")
			_, last := t.Column("last_name")
			return first && last
		},
	},
	{
		tag:    PurposeDepartment,
		reason: "department naming",
		match: func(t *Table) bool {
			if nameHasAny(t.Name, departmentWords) {
				return true
			}
			for _, pk := range t.PrimaryKey {
				if nameIs(pk, "dept_id", "department_id") {
					return true
				}
			}
			return false
		},
	},
	{
		tag:    PurposeSalary,
		reason: "compensation columns",
		match: func(t *Table) bool {
			if nameHasAny(t.Name, salaryWords) {
				return true
			}
			for _, c := range t.Columns {
				if nameHasAny(c.Name, salaryWords) && FamilyOf(c.Type).IsNumeric() {
					return true
				}
			}
			return false
		},
	},
	{
		tag:    PurposeDocumentMetadata,
		reason: "free-text content with file naming",
		match: func(t *Table) bool {
			var text, file bool
			for _, c := range t.Columns {
				if IsFreeText(c.Type) {
					text = true
				}
				if nameHasAny(c.Name, fileWords) {
					file = true
				}
			}
			return text && file
		},
	},
}

var (
	employeeWords   = []string{"employee", "emp", "staff", "personnel", "worker"}
	departmentWords = []string{"department", "dept", "division"}
	salaryWords     = []string{"salary", "compensation", "pay", "wage", "payroll"}
	fileWords       = []string{"filename", "file", "path", "url", "document", "attachment"}
)

// ClassifyTable labels a table by the first matching rule.
func ClassifyTable(t *Table) (PurposeTag, string) {
	for _, r := range purposeRules {
		if r.match(t) {
			return r.tag, r.reason
		}
	}
	return PurposeOther, "no rule matched"
}

// nameHasAny reports whether any singularized token of name is in words.
func nameHasAny(name string, words []string) bool {
	for _, tok := range Tokens(name) {
		if slices.Contains(words, Singular(tok)) {
			return true
		}
	}
	return false
}

func nameIs(name string, candidates ...string) bool {
	return slices.Contains(candidates, lowerASCII(name))
}
