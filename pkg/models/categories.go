package models

// CategoryFallback is assigned when categorization is unavailable or
// returns nothing usable.
const CategoryFallback = "Fun"

// Categories is the fixed vocabulary entries are tagged from. The
// categorization model is instructed to pick from this list; anything
// else it returns is discarded.
var Categories = []string{
	"Tech", "AI", "Science", "Business", "Finance", "Sports", "Music",
	"Movies", "Gaming", "Food", "Travel", "Fashion", "Art", "Photography",
	"Health", "Fitness", "News", "Politics", "Education", "DIY", "Nature",
	"Books", "Fun",
}

var categorySet = func() map[string]struct{} {
	s := make(map[string]struct{}, len(Categories))
	for _, c := range Categories {
		s[c] = struct{}{}
	}
	return s
}()

func ValidCategory(c string) bool {
	_, ok := categorySet[c]
	return ok
}

// FilterCategories keeps vocabulary matches in order, deduplicated,
// capped at three. Empty input stays empty.
func FilterCategories(in []string) []string {
	out := make([]string, 0, 3)
	seen := make(map[string]struct{}, 3)
	for _, c := range in {
		if !ValidCategory(c) {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
		if len(out) == 3 {
			break
		}
	}
	return out
}
