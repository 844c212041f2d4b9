package option

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/warebill/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption mutates a gorm statement before execution.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type optionFunc func(db *gorm.DB) *gorm.DB

func (f optionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// WithSortBy orders by column; desc flips direction. Column must be a trusted identifier.
func WithSortBy(column string, desc bool) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: desc})
	})
}

func WithPage(p pagination.Page) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Offset()).Limit(p.Limit())
	})
}

func WithLimit(limit int) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Limit(limit)
	})
}

// WithForUpdate locks selected rows. SQLite drivers drop the clause.
func WithForUpdate() QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	})
}

type Operator string

const (
	EQ  Operator = "="
	GTE Operator = ">="
	LTE Operator = "<="
	LT  Operator = "<"
	IN  Operator = "IN"
)

// Condition is a single column predicate.
type Condition struct {
	Column   string
	Operator Operator
	Value    any
}

func ApplyOperator(conds ...Condition) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		for _, c := range conds {
			op := strings.TrimSpace(string(c.Operator))
			if op == "" {
				op = string(EQ)
			}
			if c.Operator == IN {
				db = db.Where(fmt.Sprintf("%s IN ?", c.Column), c.Value)
				continue
			}
			db = db.Where(fmt.Sprintf("%s %s ?", c.Column, op), c.Value)
		}
		return db
	})
}
