package resolver

import (
	"errors"
	"slices"
	"testing"
)

func TestBaseTypesResolveBySimpleName(t *testing.T) {
	r := New()
	for _, name := range []string{"String", "java.lang.String", "java/lang/String"} {
		c, err := r.Class(name)
		if err != nil {
			t.Fatalf("Class(%q): %v", name, err)
		}
		if c.Name != "java/lang/String" {
			t.Errorf("Class(%q).Name = %q", name, c.Name)
		}
	}
	if r.HasClass("List") {
		t.Error("List resolved without an import")
	}
}

func TestUnknownClassSuggestion(t *testing.T) {
	r := New()
	_, err := r.Class("java.lang.Strin")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
	if nf.Suggestion != "java.lang.String" {
		t.Errorf("Suggestion = %q, want java.lang.String", nf.Suggestion)
	}

	_, err = r.Class("Sytem")
	if !errors.As(err, &nf) || nf.Suggestion != "System" {
		t.Errorf("simple-name suggestion = %v", err)
	}
}

func TestImportScopes(t *testing.T) {
	r := New()
	depth := r.Depth()

	r.Push(Imports("java.util.List"))
	if name, err := r.ClassName("List"); err != nil || name != "java/util/List" {
		t.Errorf("ClassName(List) = %q, %v", name, err)
	}
	if r.HasClass("HashMap") {
		t.Error("HashMap visible through a single-class import")
	}

	r.Push(Imports("java.util.*"))
	if !r.HasClass("HashMap") {
		t.Error("HashMap not visible through on-demand import")
	}

	if err := r.Pop(); err != nil {
		t.Fatal(err)
	}
	if err := r.Pop(); err != nil {
		t.Fatal(err)
	}
	if r.Depth() != depth {
		t.Errorf("Depth = %d, want %d", r.Depth(), depth)
	}
	if r.HasClass("List") {
		t.Error("import leaked past Pop")
	}
	if err := r.Pop(); err == nil {
		t.Error("popping the base types succeeded")
	}
}

func TestForkIsolatesScopes(t *testing.T) {
	r := New()
	f := r.Fork()
	f.Push(Imports("java.util.List"))
	if r.HasClass("List") {
		t.Error("fork pushed into parent")
	}
	if !f.HasClass("List") {
		t.Error("fork lost its own import")
	}
}

func TestFieldLookupWalksHierarchy(t *testing.T) {
	r := New()
	ref, err := r.Field("System", "out")
	if err != nil {
		t.Fatal(err)
	}
	if ref.Desc != "Ljava/io/PrintStream;" || !ref.IsStatic() {
		t.Errorf("System.out = %+v", ref)
	}

	_, err = r.Field("System", "exit")
	var wk *WrongKindError
	if !errors.As(err, &wk) || wk.Want != KindField || wk.Got != KindMethod {
		t.Errorf("System.exit as field: err = %v, want WrongKindError", err)
	}

	_, err = r.Field("System", "ot")
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Suggestion != "out" {
		t.Errorf("System.ot: err = %v", err)
	}
}

func TestMethodLookup(t *testing.T) {
	r := New()

	tests := []struct {
		class, name, desc string
		wantDesc          string
		wantOwner         string
	}{
		{"java.io.PrintStream", "println", "(Ljava/lang/String;)V", "(Ljava/lang/String;)V", "java/io/PrintStream"},
		{"java.io.PrintStream", "flush", "", "()V", "java/io/OutputStream"},
		{"String", "hashCode", "", "()I", "java/lang/String"},
		{"java.util.ArrayList", "hashCode", "()I", "()I", "java/lang/Object"},
		{"java.util.List", "iterator", "", "()Ljava/util/Iterator;", "java/lang/Iterable"},
	}
	for _, tt := range tests {
		ref, err := r.Method(tt.class, tt.name, tt.desc)
		if err != nil {
			t.Errorf("Method(%s, %s, %s): %v", tt.class, tt.name, tt.desc, err)
			continue
		}
		if ref.Desc != tt.wantDesc || ref.Owner.Name != tt.wantOwner {
			t.Errorf("Method(%s, %s) = %s in %s, want %s in %s", tt.class, tt.name, ref.Desc, ref.Owner.Name, tt.wantDesc, tt.wantOwner)
		}
	}

	_, err := r.Method("java.io.PrintStream", "println", "")
	var amb *AmbiguousError
	if !errors.As(err, &amb) || len(amb.Candidates) < 2 {
		t.Errorf("overloaded println without signature: err = %v", err)
	}

	_, err = r.Method("System", "out", "")
	var wk *WrongKindError
	if !errors.As(err, &wk) || wk.Got != KindField {
		t.Errorf("System.out as method: err = %v", err)
	}
}

func TestConstructorLookup(t *testing.T) {
	r := New()
	if _, err := r.Constructor("Object", ""); err != nil {
		t.Errorf("Object(): %v", err)
	}
	if _, err := r.Constructor("RuntimeException", ""); err == nil {
		t.Error("overloaded constructor resolved without a signature")
	}
	ref, err := r.Method("RuntimeException", "<init>", "(Ljava/lang/String;)V")
	if err != nil || ref.Owner.Name != "java/lang/RuntimeException" {
		t.Errorf("RuntimeException(String) = %+v, %v", ref, err)
	}
	if r.HasConstructor("System") {
		t.Error("System has no public constructor")
	}
	// Constructors are not inherited.
	if _, err := r.Constructor("Integer", "()V"); err == nil {
		t.Error("Integer() resolved through Number")
	}
}

func TestClassNameThatIsAMember(t *testing.T) {
	r := New()
	_, err := r.Class("java.lang.System.out")
	var wk *WrongKindError
	if !errors.As(err, &wk) || wk.Want != KindClass || wk.Got != KindField {
		t.Errorf("err = %v, want WrongKindError class/field", err)
	}
}

func TestIsSubclass(t *testing.T) {
	r := New()
	if !r.IsSubclass("java/lang/IllegalStateException", "java/lang/Throwable") {
		t.Error("IllegalStateException is a Throwable")
	}
	if r.IsSubclass("java/lang/String", "java/lang/Throwable") {
		t.Error("String is not a Throwable")
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "abc", 0},
		{"kitten", "sitting", 3},
		{"out", "ot", 1},
		{"", "abc", 3},
	}
	for _, tt := range tests {
		if got := distance(tt.a, tt.b); got != tt.want {
			t.Errorf("distance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestClassNames(t *testing.T) {
	r := New(NewSnapshot(&ClassInfo{Name: "java/lang/String"}, &ClassInfo{Name: "a/B"}))
	names := r.ClassNames()
	if !slices.IsSorted(names) {
		t.Errorf("ClassNames not sorted: %v", names)
	}
	if !slices.Contains(names, "a/B") {
		t.Error("ClassNames is missing a/B")
	}
	if n := len(slices.Compact(slices.Clone(names))); n != len(names) {
		t.Errorf("ClassNames has duplicates: %v", names)
	}
}
