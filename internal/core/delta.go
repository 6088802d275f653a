package core

// SignedDelta returns the contribution a transaction makes to its account
// balance: +amount for income, -amount for expense. The amount must be
// positive; the kind must be known.
//
// Reversing a transaction's effect is applying the negated delta, so
// delta + (-delta) always nets to zero in exact integer cents.
func SignedDelta(amount Money, kind Kind) (Money, error) {
	if err := amount.Validate(); err != nil {
		return Money{}, err
	}
	switch kind {
	case Income:
		return amount, nil
	case Expense:
		return Money{Cents: -amount.Cents}, nil
	}
	return Money{}, ErrInvalidKind
}

// Neg returns the negated delta.
func (m Money) Neg() Money {
	return Money{Cents: -m.Cents}
}
