package main

import (
	_ "embed"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed fixtures.yaml
var defaultFixtures []byte

type fixtures struct {
	GroupID   int64              `yaml:"group_id"`
	Companies []companyFixture   `yaml:"companies"`
	Accounts  []accountFixture   `yaml:"account_template"`
	Agreement []agreementFixture `yaml:"agreements"`
}

type companyFixture struct {
	Code   string `yaml:"code"`
	Name   string `yaml:"name"`
	Holdco bool   `yaml:"holdco"`
}

type accountFixture struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type agreementFixture struct {
	Provider      string `yaml:"provider"`
	Recipient     string `yaml:"recipient"`
	Type          string `yaml:"type"`
	Pricing       string `yaml:"pricing"`
	MarkupRate    string `yaml:"markup_rate"`
	FixedFee      string `yaml:"fixed_fee"`
	VATRate       string `yaml:"vat_rate"`
	WHTRate       string `yaml:"wht_rate"`
	WHTTaxType    string `yaml:"wht_tax_type"`
	EffectiveFrom string `yaml:"effective_from"`
	EffectiveTo   string `yaml:"effective_to"`
}

// agreementRow is an agreement with parsed amounts, ready to insert.
type agreementRow struct {
	Provider      string
	Recipient     string
	Type          string
	Pricing       string
	MarkupRate    decimal.Decimal
	FixedFee      decimal.Decimal
	VATRate       decimal.Decimal
	WHTRate       decimal.Decimal
	WHTTaxType    *string
	EffectiveFrom time.Time
	EffectiveTo   *time.Time
}

func loadFixtures(r io.Reader) (fixtures, error) {
	var f fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return fixtures{}, fmt.Errorf("decode fixtures: %w", err)
	}
	if f.GroupID <= 0 {
		return fixtures{}, fmt.Errorf("group_id must be positive")
	}
	codes := make(map[string]bool, len(f.Companies))
	holdcos := 0
	for _, c := range f.Companies {
		if c.Code == "" || codes[c.Code] {
			return fixtures{}, fmt.Errorf("company code %q missing or duplicated", c.Code)
		}
		codes[c.Code] = true
		if c.Holdco {
			holdcos++
		}
	}
	if holdcos != 1 {
		return fixtures{}, fmt.Errorf("exactly one holding company expected, got %d", holdcos)
	}
	for _, a := range f.Agreement {
		if !codes[a.Provider] || !codes[a.Recipient] {
			return fixtures{}, fmt.Errorf("agreement %s -> %s references an unknown company", a.Provider, a.Recipient)
		}
	}
	return f, nil
}

func (a agreementFixture) row() (agreementRow, error) {
	row := agreementRow{Provider: a.Provider, Recipient: a.Recipient, Type: a.Type, Pricing: a.Pricing}
	var err error
	for _, field := range []struct {
		name string
		raw  string
		dest *decimal.Decimal
	}{
		{"markup_rate", a.MarkupRate, &row.MarkupRate},
		{"fixed_fee", a.FixedFee, &row.FixedFee},
		{"vat_rate", a.VATRate, &row.VATRate},
		{"wht_rate", a.WHTRate, &row.WHTRate},
	} {
		if field.raw == "" {
			continue
		}
		if *field.dest, err = decimal.NewFromString(field.raw); err != nil {
			return agreementRow{}, fmt.Errorf("%s: %w", field.name, err)
		}
	}
	if a.WHTTaxType != "" {
		taxType := a.WHTTaxType
		row.WHTTaxType = &taxType
	}
	if row.EffectiveFrom, err = time.Parse(time.DateOnly, a.EffectiveFrom); err != nil {
		return agreementRow{}, fmt.Errorf("effective_from: %w", err)
	}
	if a.EffectiveTo != "" {
		to, err := time.Parse(time.DateOnly, a.EffectiveTo)
		if err != nil {
			return agreementRow{}, fmt.Errorf("effective_to: %w", err)
		}
		row.EffectiveTo = &to
	}
	return row, nil
}

type existingAgreement struct {
	ID         int64
	Referenced bool
}

// agreementPlan says which stored agreement a fixture overwrites. Keep is zero
// when nothing is stored and a new row is inserted.
type agreementPlan struct {
	Keep     int64
	Delete   []int64
	Retire   []int64
	RetireOn time.Time
}

// planAgreement keeps the oldest referenced agreement, or the oldest one when
// none is referenced. Other referenced copies end the day before the fixture
// takes effect so only one agreement stays active for the pair.
func planAgreement(existing []existingAgreement, effectiveFrom time.Time) agreementPlan {
	plan := agreementPlan{RetireOn: effectiveFrom.AddDate(0, 0, -1)}
	for _, e := range existing {
		if e.Referenced {
			plan.Keep = e.ID
			break
		}
	}
	if plan.Keep == 0 && len(existing) > 0 {
		plan.Keep = existing[0].ID
	}
	for _, e := range existing {
		switch {
		case e.ID == plan.Keep:
		case e.Referenced:
			plan.Retire = append(plan.Retire, e.ID)
		default:
			plan.Delete = append(plan.Delete, e.ID)
		}
	}
	return plan
}
