// Package pricing computes the final chargeable price for a product given a
// customer's option selections. It has no persistence and no side effects.
package pricing

import (
	"fmt"
	"math"

	"saldopos/backend/internal/domain"
	"saldopos/backend/internal/store"
)

// Result carries the computed price plus the resolved option snapshot that
// gets stored on the resulting purchase transaction.
type Result struct {
	PriceCents      int64
	SelectedOptions []domain.SelectedOptionGroup
}

// ComputeFinalPrice validates the selections against the product's option
// groups, sums the base price and option deltas, applies the percent discount
// then the flat discount, and clamps the result at zero. Percent discounts
// round half-up at the cent.
func ComputeFinalPrice(product domain.Product, selections []domain.SelectedOptionInput) (Result, error) {
	selectedByGroup := make(map[string][]string, len(selections))
	for _, sel := range selections {
		selectedByGroup[sel.GroupID] = append(selectedByGroup[sel.GroupID], sel.ChoiceIDs...)
	}

	groupsByID := make(map[string]domain.OptionGroup, len(product.OptionGroups))
	for _, group := range product.OptionGroups {
		groupsByID[group.ID] = group
	}
	for groupID := range selectedByGroup {
		if _, ok := groupsByID[groupID]; !ok {
			return Result{}, fmt.Errorf("%w: unknown option selection", store.ErrValidation)
		}
	}

	amount := product.PriceCents
	snapshot := make([]domain.SelectedOptionGroup, 0, len(product.OptionGroups))

	for _, group := range product.OptionGroups {
		choiceIDs := selectedByGroup[group.ID]
		if group.Required && len(choiceIDs) == 0 {
			return Result{}, fmt.Errorf("%w: missing required selection", store.ErrValidation)
		}
		if !group.Multiple && len(choiceIDs) > 1 {
			return Result{}, fmt.Errorf("%w: group does not allow multiple selections", store.ErrValidation)
		}
		if len(choiceIDs) == 0 {
			continue
		}

		choicesByID := make(map[string]domain.OptionChoice, len(group.Choices))
		for _, choice := range group.Choices {
			choicesByID[choice.ID] = choice
		}

		selectedGroup := domain.SelectedOptionGroup{
			GroupID: group.ID,
			Name:    group.Name,
			Choices: make([]domain.SelectedOptionChoice, 0, len(choiceIDs)),
		}
		seen := make(map[string]bool, len(choiceIDs))
		for _, choiceID := range choiceIDs {
			choice, ok := choicesByID[choiceID]
			if !ok {
				return Result{}, fmt.Errorf("%w: unknown option selection", store.ErrValidation)
			}
			if seen[choiceID] {
				if !group.Multiple {
					return Result{}, fmt.Errorf("%w: group does not allow multiple selections", store.ErrValidation)
				}
				continue
			}
			seen[choiceID] = true
			amount += choice.PriceDeltaCents
			selectedGroup.Choices = append(selectedGroup.Choices, domain.SelectedOptionChoice{
				ChoiceID:        choice.ID,
				Label:           choice.Label,
				PriceDeltaCents: choice.PriceDeltaCents,
			})
		}
		snapshot = append(snapshot, selectedGroup)
	}

	if product.DiscountPercent > 0 {
		amount = roundHalfUp(float64(amount) * (1 - product.DiscountPercent/100))
	}
	if product.DiscountFlatCents > 0 {
		amount -= product.DiscountFlatCents
	}
	if amount < 0 {
		amount = 0
	}

	return Result{PriceCents: amount, SelectedOptions: snapshot}, nil
}

// roundHalfUp is standard currency rounding at the cent.
func roundHalfUp(v float64) int64 {
	return int64(math.Floor(v + 0.5))
}
