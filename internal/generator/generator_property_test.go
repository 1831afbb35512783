package generator

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_GeneratedRecordsValidate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("every generated record passes validation", prop.ForAll(
		func(seed int64) bool {
			g := NewAt(seed, testNow)
			for i := 0; i < 20; i++ {
				if err := g.Next().ValidateAt(testNow); err != nil {
					return false
				}
			}
			for i := 0; i < 5; i++ {
				if err := g.NextSpecial().ValidateAt(testNow); err != nil {
					return false
				}
			}
			return true
		},
		gen.Int64(),
	))

	properties.Property("ages stay inside the generation window", prop.ForAll(
		func(seed int64) bool {
			g := NewAt(seed, testNow)
			for i := 0; i < 20; i++ {
				age := g.Next().AgeAt(testNow)
				if age < 17 || age > 65 {
					return false
				}
			}
			return true
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}

func TestProperty_SeedDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("same seed yields the same sequence", prop.ForAll(
		func(seed int64) bool {
			a := NewAt(seed, testNow)
			b := NewAt(seed, testNow)
			for i := 0; i < 10; i++ {
				if a.Next() != b.Next() {
					return false
				}
			}
			return true
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}

func TestProperty_StreamCount(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("a stream yields exactly the requested count", prop.ForAll(
		func(seed int64, n int) bool {
			g := NewAt(seed, testNow)
			stream, err := g.Stream(n)
			if err != nil {
				return false
			}
			count := 0
			for {
				_, ok := stream.Next()
				if !ok {
					break
				}
				count++
			}
			if _, ok := stream.Next(); ok {
				return false
			}
			return count == n
		},
		gen.Int64(),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
