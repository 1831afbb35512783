// Package generator produces synthetic person records for load and
// benchmark runs. Generation is seeded and lazy: a Stream yields records
// one at a time, and the same seed always yields the same sequence.
package generator

import (
	"fmt"
	"math/rand"
	"time"

	rerrors "github.com/rosterbench/rosterbench/internal/errors"
	"github.com/rosterbench/rosterbench/pkg/types"
)

// Name pools for random records. Full names follow the
// "Surname Firstname Patronymic" layout.
var (
	surnames   = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis"}
	firstNames = []string{"John", "Jane", "Alex", "Chris", "Pat", "Sam", "Taylor", "Morgan"}

	// Special records carry a surname with the benchmark prefix.
	specialSurnames = []string{"Fisher", "Ford", "Fletcher", "Farrell", "Faulkner", "Frost"}

	malePatronymics   = []string{"Sergeevich", "Ivanovich", "Petrovich", "Nikolaevich"}
	femalePatronymics = []string{"Sergeevna", "Ivanovna", "Petrovna", "Nikolaevna"}
)

// Generated ages in days, inclusive on both ends.
const (
	minAgeDays = 365 * 18
	maxAgeDays = 365 * 65
)

// Generator yields random person records from a fixed seed. It is not
// safe for concurrent use; the load pipeline is sequential.
type Generator struct {
	seed int64
	now  time.Time
	rng  *rand.Rand
}

// New returns a generator seeded with the given value. A zero seed picks
// a clock-derived one, which is then pinned so Restart still reproduces
// the sequence. The reference date for birth date arithmetic is captured
// once at construction.
func New(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return NewAt(seed, time.Now())
}

// NewAt is New with an explicit reference date, for reproducible runs.
func NewAt(seed int64, now time.Time) *Generator {
	now = now.UTC()
	g := &Generator{
		seed: seed,
		now:  time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
	}
	g.Restart()
	return g
}

// Seed returns the effective seed, useful for logging reproducible runs.
func (g *Generator) Seed() int64 {
	return g.seed
}

// Restart rewinds the generator to the beginning of its sequence.
func (g *Generator) Restart() {
	g.rng = rand.New(rand.NewSource(g.seed))
}

// Next returns one random person. Gender is uniform, the patronymic
// agrees with it, and the birth date lands between 18 and 65 years back.
func (g *Generator) Next() types.Person {
	return g.person(surnames, g.rng.Intn(2) == 0)
}

// NextSpecial returns one record from the special pool: always male,
// with a surname starting with the benchmark prefix.
func (g *Generator) NextSpecial() types.Person {
	return g.person(specialSurnames, true)
}

func (g *Generator) person(pool []string, male bool) types.Person {
	surname := pool[g.rng.Intn(len(pool))]
	first := firstNames[g.rng.Intn(len(firstNames))]

	gender := types.GenderFemale
	patronymics := femalePatronymics
	if male {
		gender = types.GenderMale
		patronymics = malePatronymics
	}
	patronymic := patronymics[g.rng.Intn(len(patronymics))]

	days := minAgeDays + g.rng.Intn(maxAgeDays-minAgeDays+1)
	birth := g.now.AddDate(0, 0, -days)

	return types.Person{
		FullName:  fmt.Sprintf("%s %s %s", surname, first, patronymic),
		BirthDate: birth,
		Gender:    gender,
	}
}

// Stream lazily yields an exact number of records from a generator.
type Stream struct {
	gen       *Generator
	remaining int
	special   bool
}

// Stream returns a lazy stream of exactly n random records. A negative
// count is a validation error; zero yields an exhausted stream.
func (g *Generator) Stream(n int) (*Stream, error) {
	if n < 0 {
		return nil, rerrors.NewValidationError(rerrors.CodeNegativeCount,
			fmt.Sprintf("generator: record count must not be negative, got %d", n))
	}
	return &Stream{gen: g, remaining: n}, nil
}

// SpecialStream returns a lazy stream of exactly n special records.
func (g *Generator) SpecialStream(n int) (*Stream, error) {
	if n < 0 {
		return nil, rerrors.NewValidationError(rerrors.CodeNegativeCount,
			fmt.Sprintf("generator: record count must not be negative, got %d", n))
	}
	return &Stream{gen: g, remaining: n, special: true}, nil
}

// Next yields the next record. The second return is false once the
// stream has produced its full count.
func (s *Stream) Next() (types.Person, bool) {
	if s.remaining <= 0 {
		return types.Person{}, false
	}
	s.remaining--
	if s.special {
		return s.gen.NextSpecial(), true
	}
	return s.gen.Next(), true
}

// Remaining reports how many records the stream has yet to yield.
func (s *Stream) Remaining() int {
	return s.remaining
}

// Generate materializes n random records at once. Intended for small
// counts; bulk loads should consume a Stream instead.
func (g *Generator) Generate(n int) ([]types.Person, error) {
	stream, err := g.Stream(n)
	if err != nil {
		return nil, err
	}
	records := make([]types.Person, 0, n)
	for {
		p, ok := stream.Next()
		if !ok {
			break
		}
		records = append(records, p)
	}
	return records, nil
}
