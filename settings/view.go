package settings

import (
	"fmt"
	"slices"
)

// View is a Store scoped to one namespace of a Backend. Views are shared:
// Open returns the same View for the same namespace until every holder has
// called Close.
type View struct {
	backend   *Backend
	namespace string
	refs      int
}

// Open returns the shared view for namespace and takes a reference on it.
func (b *Backend) Open(namespace string) *View {
	b.viewsMu.Lock()
	defer b.viewsMu.Unlock()

	v, ok := b.views[namespace]
	if !ok {
		v = &View{backend: b, namespace: namespace}
		b.views[namespace] = v
	}

	v.refs++

	return v
}

// Close drops one reference. The view is forgotten by the backend once the
// last reference is gone; values stay in the backend.
func (v *View) Close() {
	b := v.backend

	b.viewsMu.Lock()
	defer b.viewsMu.Unlock()

	if v.refs == 0 {
		return
	}

	v.refs--
	if v.refs == 0 && b.views[v.namespace] == v {
		delete(b.views, v.namespace)
	}
}

// Namespace returns the key prefix of the view.
func (v *View) Namespace() string { return v.namespace }

// Refs returns the number of open references.
func (v *View) Refs() int {
	v.backend.viewsMu.Lock()
	defer v.backend.viewsMu.Unlock()

	return v.refs
}

func (v *View) full(key string) string { return v.namespace + key }

func (v *View) GetBool(key string) (bool, error) {
	val, _, err := v.backend.get(v.full(key), KindBool)
	if err != nil {
		return false, err
	}

	return val.(bool), nil
}

func (v *View) GetInt(key string) (int, error) {
	val, _, err := v.backend.get(v.full(key), KindInt)
	if err != nil {
		return 0, err
	}

	return val.(int), nil
}

func (v *View) GetDouble(key string) (float64, error) {
	val, _, err := v.backend.get(v.full(key), KindDouble)
	if err != nil {
		return 0, err
	}

	return val.(float64), nil
}

func (v *View) GetString(key string) (string, error) {
	val, _, err := v.backend.get(v.full(key), KindString)
	if err != nil {
		return "", err
	}

	return val.(string), nil
}

func (v *View) GetEnum(key string) (int, error) {
	val, k, err := v.backend.get(v.full(key), KindString)
	if err != nil {
		return 0, err
	}

	if len(k.Choices) == 0 {
		return 0, fmt.Errorf("%w: %s is not an enum", ErrTypeMismatch, v.full(key))
	}

	return slices.Index(k.Choices, val.(string)), nil
}

func (v *View) SetBool(key string, val bool) error {
	return v.backend.set(v.full(key), KindBool, val)
}

func (v *View) SetInt(key string, val int) error {
	return v.backend.set(v.full(key), KindInt, val)
}

func (v *View) SetDouble(key string, val float64) error {
	return v.backend.set(v.full(key), KindDouble, val)
}

func (v *View) SetString(key string, val string) error {
	return v.backend.set(v.full(key), KindString, val)
}

func (v *View) OnChange(key string, fn func()) (func(), error) {
	return v.backend.observe(v.full(key), fn)
}

var _ Store = (*View)(nil)
