package moneydecimal

import "sort"

// Sum adds a slice of decimals left to right.
func Sum(values []Decimal) (Decimal, error) {
	total := Zero
	var err error
	for _, v := range values {
		total, err = total.Add(v)
		if err != nil {
			return Decimal{}, err
		}
	}
	return total, nil
}

// Mean computes the arithmetic mean at IntermediateScale.
func Mean(values []Decimal) (Decimal, error) {
	if len(values) == 0 {
		return Decimal{}, ErrEmptySet
	}
	total, err := Sum(values)
	if err != nil {
		return Decimal{}, err
	}
	return total.Quo(FromInt64(int64(len(values))))
}

// Median computes the median, averaging the two middle elements on ties
// per spec.md §4.3. Does not mutate the input slice.
func Median(values []Decimal) (Decimal, error) {
	if len(values) == 0 {
		return Decimal{}, ErrEmptySet
	}
	sorted := make([]Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2], nil
	}
	return Mean([]Decimal{sorted[n/2-1], sorted[n/2]})
}

// MinMax returns the minimum and maximum of values.
func MinMax(values []Decimal) (min, max Decimal, err error) {
	if len(values) == 0 {
		return Decimal{}, Decimal{}, ErrEmptySet
	}
	min, max = values[0], values[0]
	for _, v := range values[1:] {
		if v.LessThan(min) {
			min = v
		}
		if v.GreaterThan(max) {
			max = v
		}
	}
	return min, max, nil
}

// StdDev computes the population standard deviation.
func StdDev(values []Decimal) (Decimal, error) {
	if len(values) == 0 {
		return Decimal{}, ErrEmptySet
	}
	if len(values) == 1 {
		return Zero, nil
	}
	mean, err := Mean(values)
	if err != nil {
		return Decimal{}, err
	}
	sumSq := Zero
	for _, v := range values {
		diff, err := v.Sub(mean)
		if err != nil {
			return Decimal{}, err
		}
		sq, err := diff.Mul(diff)
		if err != nil {
			return Decimal{}, err
		}
		sumSq, err = sumSq.Add(sq)
		if err != nil {
			return Decimal{}, err
		}
	}
	variance, err := sumSq.Quo(FromInt64(int64(len(values))))
	if err != nil {
		return Decimal{}, err
	}
	return variance.Sqrt()
}

// ErrEmptySet is returned by the statistics helpers when called on an
// empty set. Aggregation never calls them on an empty set: it only
// finalizes (bucket, partition) pairs that received at least one record.
var ErrEmptySet = emptySetError{}

type emptySetError struct{}

func (emptySetError) Error() string { return "moneydecimal: empty value set" }
