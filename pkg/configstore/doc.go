// Package configstore implements the namespaced key/value store shared
// by hosted units. Keys are partitioned into core:, public: and
// module:<name>: namespaces; core and public are write-once at
// initialization, module namespaces are writable only through an
// identity token issued to the owning unit at load time. Reloads swap
// the whole entry set atomically.
package configstore
