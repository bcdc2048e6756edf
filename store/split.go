package store

import (
	"context"
	"fmt"
	"math"
	"math/rand"
)

// Split copies a store's records into two new stores, drawing a seeded
// random valRatio fraction into the validation store and the rest into
// the training store. Records are re-keyed from zero in each output so
// downstream consumers see dense zero-padded key ranges.
func Split(ctx context.Context, src *Store, trainPath, valPath string, valRatio float64, seed int64) (nTrain, nVal int, err error) {
	if valRatio < 0 || valRatio >= 1 {
		return 0, 0, fmt.Errorf("split: val ratio %v out of [0, 1)", valRatio)
	}
	total, err := src.Count(ctx)
	if err != nil {
		return 0, 0, err
	}

	nVal = int(math.Round(float64(total) * valRatio))
	perm := rand.New(rand.NewSource(seed)).Perm(total)
	toVal := make(map[int]bool, nVal)
	for _, idx := range perm[:nVal] {
		toVal[idx] = true
	}

	train, err := Create(trainPath)
	if err != nil {
		return 0, 0, err
	}
	defer train.Close()
	val, err := Create(valPath)
	if err != nil {
		return 0, 0, err
	}
	defer val.Close()

	trainKey, valKey := 0, 0
	err = src.ForEach(ctx, func(idx int, rec *Record) error {
		if toVal[idx] {
			if err := val.Put(ctx, valKey, rec); err != nil {
				return err
			}
			valKey++
			return nil
		}
		if err := train.Put(ctx, trainKey, rec); err != nil {
			return err
		}
		trainKey++
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("split: %w", err)
	}
	return trainKey, valKey, nil
}
