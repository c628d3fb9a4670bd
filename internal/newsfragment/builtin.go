package newsfragment

import "github.com/skeinworks/skein/pkg/deprecation"

// Builtin returns the shipped fragment announcing the secrets-backend
// method removals published under SK301.
func Builtin() *Fragment {
	return New(
		"SK301",
		"Dag changes",
		"3.0",
		"Removed deprecated methods from secrets backends: ``get_conn_uri`` is replaced by ``get_conn_value`` and ``get_connections`` is replaced by ``get_connection``. Code that still calls the removed methods fails with a missing-attribute error; call the listed replacement instead.",
		deprecation.Builtin(),
	)
}
