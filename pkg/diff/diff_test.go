package diff

import (
	"errors"
	"strings"
	"testing"
)

func TestWords(t *testing.T) {
	t.Parallel()

	got := Words("“Don't,” she said -- twice!\n\nOK 42.")
	want := "don't she said twice ok 42"
	if strings.Join(got, " ") != want {
		t.Fatalf("Words=%q, want %q", got, want)
	}
}

func TestStrings_Coalesces(t *testing.T) {
	t.Parallel()

	deltas, err := Strings("the red fox ran home", "the fox ran far away home")
	if err != nil {
		t.Fatalf("Strings: %v", err)
	}
	var sb strings.Builder
	for _, d := range deltas {
		sb.WriteString([]string{"=", "+", "-"}[d.Op])
		sb.WriteString(d.Text)
		sb.WriteByte('|')
	}
	if got, want := sb.String(), "=the|-red|=fox ran|+far away|=home|"; got != want {
		t.Fatalf("deltas=%s, want %s", got, want)
	}
}

func TestCover(t *testing.T) {
	t.Parallel()

	source := "Mara left at dawn. The rain began. She reached the station before noon."
	parts := []string{"Mara left at dawn.", "She reached the station before noon, tired."}

	cov, err := Cover(source, parts)
	if err != nil {
		t.Fatalf("Cover: %v", err)
	}
	if cov.Words != 13 || cov.Covered != 10 {
		t.Fatalf("cov=%+v", cov)
	}
	if len(cov.Missing) != 1 || cov.Missing[0] != "the rain began" {
		t.Fatalf("missing=%q", cov.Missing)
	}
	if r := cov.Ratio(); r < 0.76 || r > 0.77 {
		t.Fatalf("ratio=%v", r)
	}

	full, err := Cover(source, []string{source})
	if err != nil || full.Ratio() != 1 || len(full.Missing) != 0 {
		t.Fatalf("full=%+v err=%v", full, err)
	}
}

func TestCover_TooLarge(t *testing.T) {
	t.Parallel()

	big := strings.Repeat("word ", 2001)
	if _, err := Cover(big, []string{big}); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err=%v, want ErrTooLarge", err)
	}
}
