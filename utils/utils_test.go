package utils

import (
	"testing"
	"time"

	. "github.com/fulldump/biff"
)

func TestGetKeys(t *testing.T) {
	AssertEqual(GetKeys(map[string]int{"b": 1, "c": 2, "a": 3}), []string{"a", "b", "c"})
	AssertEqual(GetKeys(map[string]bool{}), []string{})
}

func TestRemarshal(t *testing.T) {

	input := map[string]any{
		"age":  int64(33),
		"born": time.Date(1990, 1, 2, 0, 0, 0, 0, time.UTC),
		"dogs": []int64{1, 2},
	}

	output := map[string]any{}
	AssertNil(Remarshal(input, &output))

	AssertEqual(output["age"], float64(33))
	AssertEqual(output["born"], "1990-01-02T00:00:00Z")
	AssertEqual(output["dogs"], []any{float64(1), float64(2)})
}
