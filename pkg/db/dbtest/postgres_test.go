package dbtest

import "testing"

func TestWithSearchPath(t *testing.T) {
	cases := map[string]string{
		"postgres://u@h:5432/db":                  "postgres://u@h:5432/db?search_path=s1",
		"postgres://u@h:5432/db?sslmode=disable":  "postgres://u@h:5432/db?sslmode=disable&search_path=s1",
		"host=h user=u dbname=db sslmode=disable": "host=h user=u dbname=db sslmode=disable search_path=s1",
	}
	for in, want := range cases {
		if got := withSearchPath(in, "s1"); got != want {
			t.Fatalf("withSearchPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOpenPostgresSkipsWithoutDSN(t *testing.T) {
	t.Setenv(EnvPostgresDSN, "")
	ran := false
	t.Run("skipped", func(t *testing.T) {
		OpenPostgres(t)
		ran = true
	})
	if ran {
		t.Fatal("expected OpenPostgres to skip without a DSN")
	}
}
