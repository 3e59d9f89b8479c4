package ranking

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanefeed/lanefeed/pkg/models"
)

func mkCand(id, category string, score float64) *Candidate {
	var cats []string
	if category != "" {
		cats = []string{category}
	}
	return &Candidate{
		Entry:      &models.LibraryEntry{ID: id, Categories: cats},
		BaseScore:  score,
		FinalScore: score,
	}
}

func candIDs(cands []*Candidate) []string {
	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.Entry.ID
	}
	return ids
}

func assertNoTripleRun(t *testing.T, cands []*Candidate) {
	t.Helper()
	for i := 2; i < len(cands); i++ {
		a := cands[i-2].Entry.PrimaryCategory()
		b := cands[i-1].Entry.PrimaryCategory()
		c := cands[i].Entry.PrimaryCategory()
		assert.False(t, a == b && b == c, "categories %q repeat three times at position %d", c, i)
	}
}

func TestDiversify(t *testing.T) {
	t.Run("breaks a run of three", func(t *testing.T) {
		in := []*Candidate{
			mkCand("t1", "Tech", 0.9),
			mkCand("t2", "Tech", 0.8),
			mkCand("t3", "Tech", 0.7),
			mkCand("a4", "Art", 0.6),
			mkCand("a5", "Art", 0.5),
			mkCand("t6", "Tech", 0.4),
		}

		out := Diversify(in)
		require.Len(t, out, len(in))
		assert.Equal(t, []string{"t1", "t2", "a4", "t3", "a5", "t6"}, candIDs(out))
		assertNoTripleRun(t, out)
	})

	t.Run("single category passes through", func(t *testing.T) {
		in := []*Candidate{
			mkCand("t1", "Tech", 0.9),
			mkCand("t2", "Tech", 0.8),
			mkCand("t3", "Tech", 0.7),
			mkCand("t4", "Tech", 0.6),
		}

		out := Diversify(in)
		assert.Equal(t, []string{"t1", "t2", "t3", "t4"}, candIDs(out))
	})

	t.Run("short lists are untouched", func(t *testing.T) {
		in := []*Candidate{
			mkCand("t1", "Tech", 0.9),
			mkCand("t2", "Tech", 0.8),
		}

		out := Diversify(in)
		assert.Equal(t, []string{"t1", "t2"}, candIDs(out))
	})

	t.Run("substitute beyond the lookahead window is not promoted", func(t *testing.T) {
		in := make([]*Candidate, 0, 11)
		for i := 1; i <= 10; i++ {
			in = append(in, mkCand(fmt.Sprintf("t%d", i), "Tech", 1-float64(i)*0.05))
		}
		in = append(in, mkCand("a11", "Art", 0.01))

		out := Diversify(in)
		require.Len(t, out, 11)
		// At the third slot the only alternative sits 9 positions deep,
		// outside the window, so the run is allowed to continue.
		assert.Equal(t, "t3", out[2].Entry.ID)
	})

	t.Run("uncategorized entries count as one lane", func(t *testing.T) {
		in := []*Candidate{
			mkCand("u1", "", 0.9),
			mkCand("u2", "", 0.8),
			mkCand("u3", "", 0.7),
			mkCand("t4", "Tech", 0.6),
		}

		out := Diversify(in)
		assert.Equal(t, []string{"u1", "u2", "t4", "u3"}, candIDs(out))
		assertNoTripleRun(t, out)
	})
}

func BenchmarkDiversify(b *testing.B) {
	cats := []string{"Tech", "Tech", "Tech", "Art", "Music"}
	in := make([]*Candidate, 300)
	for i := range in {
		in[i] = mkCand(fmt.Sprintf("c%d", i), cats[i%len(cats)], 1-float64(i)*0.001)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Diversify(in)
	}
}
