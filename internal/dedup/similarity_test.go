package dedup

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"lowercases", "Bicicletas Ortega", "bicicletas ortega"},
		{"folds accents", "GARCÍA Año Vídeo", "garcia ano video"},
		{"collapses whitespace", "  taller \t central  ", "taller central"},
		{"drops invalid utf8", "abc\xff\xfedef", "abcdef"},
		{"unspecified placeholder", "No especificado", ""},
		{"not applicable placeholder", "  NO APLICABLE ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalize(tt.input); got != tt.want {
				t.Errorf("normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"sn123", "sn-123", 1},
		{"brake noise", "brakes are noisy", 6},
		{"garcia", "garcia", 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			if got := levenshtein([]rune(tt.a), []rune(tt.b)); got != tt.want {
				t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestTokenJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"brake", "noise"}, []string{"brake", "noise"}, 1},
		{"reordered", []string{"noise", "brake"}, []string{"brake", "noise"}, 1},
		{"partial", []string{"a", "b"}, []string{"b", "c"}, 1.0 / 3.0},
		{"disjoint", []string{"a"}, []string{"b"}, 0},
		{"empty side", nil, []string{"a"}, 0},
		{"repeated tokens", []string{"a", "a", "b"}, []string{"a", "b"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tokenJaccard(tt.a, tt.b); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("tokenJaccard = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFieldSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "SN123", "SN123", 1},
		{"identical after folding", "Cairon C 2.0", "  cairon c 2.0 ", 1},
		{"empty side scores zero", "", "SN123", 0},
		{"both empty score zero", "", "", 0},
		{"placeholder scores zero", "No especificado", "No especificado", 0},
		{"near identifier", "SN123", "SN-123", 5.0 / 6.0},
		{"reordered words", "ruido freno delantero", "freno delantero ruido", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fieldSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("fieldSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestFieldSimilaritySymmetry(t *testing.T) {
	pairs := [][2]string{
		{"brake noise", "brakes are noisy"},
		{"SN123", "SN-123"},
		{"Bicicletas García", "bicicletas garcia sl"},
		{"", "anything"},
	}

	for _, p := range pairs {
		if ab, ba := fieldSimilarity(p[0], p[1]), fieldSimilarity(p[1], p[0]); ab != ba {
			t.Errorf("fieldSimilarity not symmetric for %q/%q: %v vs %v", p[0], p[1], ab, ba)
		}
	}
}
