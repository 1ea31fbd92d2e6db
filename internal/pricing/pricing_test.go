package pricing

import (
	"errors"
	"testing"

	"saldopos/backend/internal/domain"
	"saldopos/backend/internal/store"
)

func coffeeProduct() domain.Product {
	return domain.Product{
		ProductID:  "prod-coffee",
		Name:       "Kopi Susu",
		PriceCents: 1800,
		Active:     true,
		OptionGroups: []domain.OptionGroup{
			{
				ID:       "size",
				Name:     "Size",
				Required: true,
				Multiple: false,
				Choices: []domain.OptionChoice{
					{ID: "small", Label: "Small", PriceDeltaCents: 0},
					{ID: "large", Label: "Large", PriceDeltaCents: 500},
				},
			},
			{
				ID:       "extras",
				Name:     "Extras",
				Required: false,
				Multiple: true,
				Choices: []domain.OptionChoice{
					{ID: "extra-shot", Label: "Extra Shot", PriceDeltaCents: 400},
					{ID: "oat-milk", Label: "Oat Milk", PriceDeltaCents: 300},
				},
			},
		},
	}
}

func TestComputeFinalPriceWithOptions(t *testing.T) {
	result, err := ComputeFinalPrice(coffeeProduct(), []domain.SelectedOptionInput{
		{GroupID: "size", ChoiceIDs: []string{"large"}},
		{GroupID: "extras", ChoiceIDs: []string{"extra-shot", "oat-milk"}},
	})
	if err != nil {
		t.Fatalf("compute price failed: %v", err)
	}
	if result.PriceCents != 1800+500+400+300 {
		t.Fatalf("expected price 3000, got %d", result.PriceCents)
	}
	if len(result.SelectedOptions) != 2 {
		t.Fatalf("expected 2 option groups in snapshot, got %d", len(result.SelectedOptions))
	}
	if result.SelectedOptions[0].Name != "Size" || result.SelectedOptions[0].Choices[0].Label != "Large" {
		t.Fatalf("unexpected snapshot: %+v", result.SelectedOptions[0])
	}
}

func TestComputeFinalPriceMissingRequiredSelection(t *testing.T) {
	_, err := ComputeFinalPrice(coffeeProduct(), nil)
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestComputeFinalPriceSingleSelectGroupRejectsTwoChoices(t *testing.T) {
	_, err := ComputeFinalPrice(coffeeProduct(), []domain.SelectedOptionInput{
		{GroupID: "size", ChoiceIDs: []string{"small", "large"}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestComputeFinalPriceUnknownSelection(t *testing.T) {
	_, err := ComputeFinalPrice(coffeeProduct(), []domain.SelectedOptionInput{
		{GroupID: "size", ChoiceIDs: []string{"venti"}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for unknown choice, got %v", err)
	}

	_, err = ComputeFinalPrice(coffeeProduct(), []domain.SelectedOptionInput{
		{GroupID: "size", ChoiceIDs: []string{"small"}},
		{GroupID: "toppings", ChoiceIDs: []string{"cheese"}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for unknown group, got %v", err)
	}
}

func TestComputeFinalPriceFlatDiscountClampsAtZero(t *testing.T) {
	product := domain.Product{Name: "Promo Item", PriceCents: 200, DiscountFlatCents: 500}
	result, err := ComputeFinalPrice(product, nil)
	if err != nil {
		t.Fatalf("compute price failed: %v", err)
	}
	if result.PriceCents != 0 {
		t.Fatalf("expected clamped price 0, got %d", result.PriceCents)
	}
}

func TestComputeFinalPricePercentDiscountRounding(t *testing.T) {
	// 10% off 1255 cents = 1129.5, rounds half-up to 1130.
	product := domain.Product{Name: "Snack", PriceCents: 1255, DiscountPercent: 10}
	result, err := ComputeFinalPrice(product, nil)
	if err != nil {
		t.Fatalf("compute price failed: %v", err)
	}
	if result.PriceCents != 1130 {
		t.Fatalf("expected 1130, got %d", result.PriceCents)
	}
}

func TestComputeFinalPricePercentThenFlat(t *testing.T) {
	product := domain.Product{Name: "Bundle", PriceCents: 2000, DiscountPercent: 25, DiscountFlatCents: 300}
	result, err := ComputeFinalPrice(product, nil)
	if err != nil {
		t.Fatalf("compute price failed: %v", err)
	}
	if result.PriceCents != 1200 {
		t.Fatalf("expected 1200, got %d", result.PriceCents)
	}
}

func TestComputeFinalPriceDuplicateMultiChoiceCountedOnce(t *testing.T) {
	result, err := ComputeFinalPrice(coffeeProduct(), []domain.SelectedOptionInput{
		{GroupID: "size", ChoiceIDs: []string{"small"}},
		{GroupID: "extras", ChoiceIDs: []string{"oat-milk", "oat-milk"}},
	})
	if err != nil {
		t.Fatalf("compute price failed: %v", err)
	}
	if result.PriceCents != 1800+300 {
		t.Fatalf("expected duplicate choice to count once, got %d", result.PriceCents)
	}
}
