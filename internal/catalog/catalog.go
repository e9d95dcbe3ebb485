package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"deposit-reconciler-go/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// ErrPlanNotFound is returned for lookups of unknown plan ids.
var ErrPlanNotFound = errors.New("plan not found")

type planEntry struct {
	Id               string            `yaml:"id"`
	Order            int               `yaml:"order"`
	Amounts          map[string]string `yaml:"amounts"`
	DurationDays     int               `yaml:"duration_days"`
	PayoutPercentage string            `yaml:"payout_percentage"`
}

type plansFile struct {
	Plans []planEntry `yaml:"plans"`
}

// PlanCatalog is the immutable, ordered set of investment plans.
// Loaded once at process start; lookups only, no mutation.
type PlanCatalog struct {
	plans []models.PlanDefinition // ascending by Order
	byId  map[string]models.PlanDefinition
}

// LoadPlanCatalog reads and validates the plan definitions file.
func LoadPlanCatalog(plansFile string) (*PlanCatalog, error) {
	plans, err := readPlansFile(plansFile)
	if err != nil {
		return nil, err
	}
	return NewPlanCatalog(plans)
}

// NewPlanCatalog validates the definitions and builds the lookup indexes.
func NewPlanCatalog(plans []models.PlanDefinition) (*PlanCatalog, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("plan catalog is empty")
	}

	byId := make(map[string]models.PlanDefinition, len(plans))
	byOrder := make(map[int]string, len(plans))
	for _, p := range plans {
		if p.Id == "" {
			return nil, fmt.Errorf("plan with order %d missing id", p.Order)
		}
		if _, dup := byId[p.Id]; dup {
			return nil, fmt.Errorf("duplicate plan id %q", p.Id)
		}
		if prev, dup := byOrder[p.Order]; dup {
			return nil, fmt.Errorf("plans %q and %q share order %d", prev, p.Id, p.Order)
		}
		if p.DurationDays <= 0 {
			return nil, fmt.Errorf("plan %q: duration_days must be positive", p.Id)
		}
		if len(p.Amounts) == 0 {
			return nil, fmt.Errorf("plan %q: no amounts configured", p.Id)
		}
		for currency, amount := range p.Amounts {
			if !amount.IsPositive() {
				return nil, fmt.Errorf("plan %q: amount for %s must be positive", p.Id, currency)
			}
		}
		if !p.PayoutPercentage.IsPositive() {
			return nil, fmt.Errorf("plan %q: payout_percentage must be positive", p.Id)
		}
		byId[p.Id] = p
		byOrder[p.Order] = p.Id
	}

	sorted := make([]models.PlanDefinition, len(plans))
	copy(sorted, plans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	return &PlanCatalog{plans: sorted, byId: byId}, nil
}

// Plans returns the catalog ranked ascending by order.
func (c *PlanCatalog) Plans() []models.PlanDefinition {
	out := make([]models.PlanDefinition, len(c.plans))
	copy(out, c.plans)
	return out
}

// ById returns the plan with the given id.
func (c *PlanCatalog) ById(id string) (models.PlanDefinition, error) {
	plan, ok := c.byId[id]
	if !ok {
		return models.PlanDefinition{}, fmt.Errorf("%w: %q", ErrPlanNotFound, id)
	}
	return plan, nil
}

// EntryOrder returns the minimum rank - the always-open entry plan.
func (c *PlanCatalog) EntryOrder() int {
	return c.plans[0].Order
}

// Predecessor returns the plan ranked directly below the given plan,
// or false for the entry plan.
func (c *PlanCatalog) Predecessor(plan models.PlanDefinition) (models.PlanDefinition, bool) {
	idx := sort.Search(len(c.plans), func(i int) bool { return c.plans[i].Order >= plan.Order })
	if idx == 0 {
		return models.PlanDefinition{}, false
	}
	return c.plans[idx-1], true
}

func readPlansFile(path string) ([]models.PlanDefinition, error) {
	var plansPath string
	if filepath.IsAbs(path) {
		plansPath = path
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		plansPath = filepath.Join(wd, path)
	}

	data, err := os.ReadFile(plansPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}

	var file plansFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", path, err)
	}

	plans := make([]models.PlanDefinition, 0, len(file.Plans))
	for i, entry := range file.Plans {
		payout, err := decimal.NewFromString(entry.PayoutPercentage)
		if err != nil {
			return nil, fmt.Errorf("plan at index %d: invalid payout_percentage %q: %w", i, entry.PayoutPercentage, err)
		}
		amounts := make(map[string]decimal.Decimal, len(entry.Amounts))
		for currency, raw := range entry.Amounts {
			amount, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("plan at index %d: invalid amount %q for %s: %w", i, raw, currency, err)
			}
			amounts[currency] = amount
		}
		plans = append(plans, models.PlanDefinition{
			Id:               entry.Id,
			Order:            entry.Order,
			Amounts:          amounts,
			DurationDays:     entry.DurationDays,
			PayoutPercentage: payout,
		})
	}
	return plans, nil
}
