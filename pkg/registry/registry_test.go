package registry

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "cfg", "switches.json"))
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	return r
}

func TestRegistry_SaveNormalizesURL(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.Save("Lab-1", "192.168.2.1"); err != nil {
		t.Fatalf("expected save to succeed, got %v", err)
	}
	sw, ok := r.Get("Lab-1")
	if !ok {
		t.Fatalf("expected Lab-1 to exist after save")
	}
	if sw.URL != "http://192.168.2.1/" {
		t.Fatalf("expected normalized url %q, got %q", "http://192.168.2.1/", sw.URL)
	}
	if sw.Name != "Lab-1" {
		t.Fatalf("expected name Lab-1, got %q", sw.Name)
	}
}

func TestRegistry_SaveTwiceOverwrites(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.Save("core", "10.0.0.1"); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := r.Save("core", "https://10.0.0.2/"); err != nil {
		t.Fatalf("second save: %v", err)
	}

	all := r.LoadAll()
	if len(all) != 1 {
		t.Fatalf("expected exactly 1 entry, got %d: %#v", len(all), all)
	}
	if got := all["core"].URL; got != "https://10.0.0.2/" {
		t.Fatalf("expected second url to win, got %q", got)
	}
}

func TestRegistry_SaveRejectsEmptyName(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.Save("  ", "10.0.0.1"); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	if _, err := os.Stat(r.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no registry file to be written, stat err=%v", err)
	}
}

func TestRegistry_DeleteMissingLeavesFileUnchanged(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Save("a", "10.0.0.1"); err != nil {
		t.Fatalf("save: %v", err)
	}
	before, err := os.ReadFile(r.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	ok, err := r.Delete("nope")
	if err != nil {
		t.Fatalf("expected no error deleting missing name, got %v", err)
	}
	if ok {
		t.Fatalf("expected delete of missing name to return false")
	}

	after, err := os.ReadFile(r.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(before) != string(after) {
		t.Fatalf("expected file unchanged\nbefore: %s\nafter:  %s", before, after)
	}
}

func TestRegistry_LoadAllMissingFileIsEmpty(t *testing.T) {
	r := newTestRegistry(t)

	all := r.LoadAll()
	if all == nil || len(all) != 0 {
		t.Fatalf("expected empty non-nil map, got %#v", all)
	}
	if names := r.Names(); len(names) != 0 {
		t.Fatalf("expected no names, got %v", names)
	}
}

func TestRegistry_LoadAllCorruptShapesAreEmpty(t *testing.T) {
	cases := map[string]string{
		"not json":        "{not json",
		"array":           `[{"name":"a","url":"http://a/"}]`,
		"null":            "null",
		"string value":    `{"a":"http://a/"}`,
		"missing url":     `{"a":{"name":"a"}}`,
		"non-string url":  `{"a":{"name":"a","url":42}}`,
		"null entry":      `{"a":null}`,
		"empty file":      "",
		"nested non-flat": `{"a":[{"name":"a","url":"http://a/"}]}`,
		"null url":        `{"a":{"name":"a","url":null},"b":{"name":"b","url":"http://b/"}}`,
		"null name":       `{"a":{"name":null,"url":"http://a/"}}`,
		"null both":       `{"a":{"name":null,"url":null},"b":{"name":"b","url":"http://b/"}}`,
	}
	for label, content := range cases {
		t.Run(label, func(t *testing.T) {
			r := newTestRegistry(t)
			if err := os.MkdirAll(filepath.Dir(r.Path()), 0o700); err != nil {
				t.Fatalf("mkdir: %v", err)
			}
			if err := os.WriteFile(r.Path(), []byte(content), 0o600); err != nil {
				t.Fatalf("write: %v", err)
			}
			if all := r.LoadAll(); len(all) != 0 {
				t.Fatalf("expected empty map for %s, got %#v", label, all)
			}
		})
	}
}

func TestRegistry_CorruptFileDoesNotBlockSave(t *testing.T) {
	r := newTestRegistry(t)
	if err := os.MkdirAll(filepath.Dir(r.Path()), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(r.Path(), []byte("garbage"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := r.Save("fresh", "10.1.1.1"); err != nil {
		t.Fatalf("expected save over corrupt file to succeed, got %v", err)
	}
	if names := r.Names(); !reflect.DeepEqual(names, []string{"fresh"}) {
		t.Fatalf("expected [fresh], got %v", names)
	}
}

func TestRegistry_KeyWinsOverStoredName(t *testing.T) {
	r := newTestRegistry(t)
	if err := os.MkdirAll(filepath.Dir(r.Path()), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := `{"edge":{"name":"something-else","url":"http://10.9.9.9/","extra":true}}`
	if err := os.WriteFile(r.Path(), []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	sw, ok := r.Get("edge")
	if !ok {
		t.Fatalf("expected edge to load despite extra fields")
	}
	if sw.Name != "edge" {
		t.Fatalf("expected key to be used as name, got %q", sw.Name)
	}
}

func TestRegistry_NamesSorted(t *testing.T) {
	r := newTestRegistry(t)
	for _, n := range []string{"charlie", "alpha", "bravo"} {
		if err := r.Save(n, "10.0.0.1"); err != nil {
			t.Fatalf("save %s: %v", n, err)
		}
	}
	if got := r.Names(); !reflect.DeepEqual(got, []string{"alpha", "bravo", "charlie"}) {
		t.Fatalf("expected sorted names, got %v", got)
	}
}

func TestRegistry_EndToEndSaveLoadDelete(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.Save("Lab-1", "192.168.2.1"); err != nil {
		t.Fatalf("save: %v", err)
	}
	want := map[string]SwitchConfig{
		"Lab-1": {Name: "Lab-1", URL: "http://192.168.2.1/"},
	}
	if got := r.LoadAll(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %#v, got %#v", want, got)
	}

	data, err := os.ReadFile(r.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	wantJSON := "{\n  \"Lab-1\": {\n    \"name\": \"Lab-1\",\n    \"url\": \"http://192.168.2.1/\"\n  }\n}\n"
	if string(data) != wantJSON {
		t.Fatalf("unexpected on-disk shape:\n%s", data)
	}

	ok, err := r.Delete("Lab-1")
	if err != nil || !ok {
		t.Fatalf("expected delete to succeed, got ok=%v err=%v", ok, err)
	}
	if got := r.LoadAll(); len(got) != 0 {
		t.Fatalf("expected empty registry after delete, got %#v", got)
	}
}

func TestRegistry_SaveFailsWhenDirIsAFile(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	r, err := Open(filepath.Join(blocker, "switches.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := r.Save("a", "10.0.0.1"); err == nil {
		t.Fatalf("expected save to fail when parent is a regular file")
	}
}

func TestDefaultPath_HonorsEnvAndXDG(t *testing.T) {
	t.Setenv(EnvRegistryPath, "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")

	p, err := DefaultPath()
	if err != nil {
		t.Fatalf("default path: %v", err)
	}
	if want := filepath.Join("/tmp/xdg-test", "yap-switch-manager", "switches.json"); p != want {
		t.Fatalf("expected %q, got %q", want, p)
	}

	t.Setenv(EnvRegistryPath, "/tmp/explicit.json")
	p, err = DefaultPath()
	if err != nil {
		t.Fatalf("default path: %v", err)
	}
	if p != "/tmp/explicit.json" {
		t.Fatalf("expected env override, got %q", p)
	}
}

func TestRegistry_LookupUnknown(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Save("core", "10.0.0.1"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if sw, err := r.Lookup("core"); err != nil || sw.URL != "http://10.0.0.1/" {
		t.Fatalf("expected core, got %#v err=%v", sw, err)
	}
	if _, err := r.Lookup("edge"); !errors.Is(err, ErrUnknownSwitch) {
		t.Fatalf("expected ErrUnknownSwitch, got %v", err)
	}
}
