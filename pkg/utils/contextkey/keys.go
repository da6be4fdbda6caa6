package contextkey

// key is a private type to avoid context key collisions across packages.
type key string

const (
	File    key = "file"
	Judge   key = "judge"
	Marker  key = "marker"
	Attempt key = "attempt"
)

// Fields lists every key the logger lifts out of a context, in output order.
var Fields = []key{File, Judge, Attempt, Marker}

// String returns the log field name of the key.
func (k key) String() string {
	return string(k)
}
