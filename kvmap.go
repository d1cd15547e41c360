package eftl

// MapCallbacks is the capability record passed to a KVMap operation.
type MapCallbacks struct {
	// OnSuccess fires when the server confirms the operation. value
	// is the stored Message for Get (nil if the key was unset), and
	// always nil for Set/Remove. key echoes the key operated on.
	OnSuccess func(value *Message, key string)
	// OnError fires on a server-reported failure.
	OnError func(err error, key string)
}

// KVMap is a thin façade over a Connection issuing MAP_SET, MAP_GET,
// and MAP_REMOVE requests against a single named remote map.
type KVMap struct {
	name string
	conn *Connection
}

// Map returns a KVMap bound to name on this Connection. Map never
// fails: it performs no I/O until an operation is called.
func (c *Connection) Map(name string) *KVMap {
	return &KVMap{name: name, conn: c}
}

// Set stores value under key. value is size-checked against the
// negotiated max_size and, if it exceeds it, MessageSizeTooLarge is
// returned synchronously without allocating a sequence number or
// sending anything.
func (m *KVMap) Set(key string, value *Message, cb MapCallbacks) error {
	return m.conn.mapOp(reqMapSet, m.name, key, value, cb)
}

// Get retrieves the value stored under key. cb.OnSuccess receives the
// stored Message, or nil if the key is unset.
func (m *KVMap) Get(key string, cb MapCallbacks) error {
	return m.conn.mapOp(reqMapGet, m.name, key, nil, cb)
}

// Remove deletes key from the map.
func (m *KVMap) Remove(key string, cb MapCallbacks) error {
	return m.conn.mapOp(reqMapRemove, m.name, key, nil, cb)
}

// Destroy removes the entire named map on the server. It is
// fire-and-forget, like Disconnect's DISCONNECT frame: the server
// sends no MAP_RESPONSE for MAP_DESTROY.
func (m *KVMap) Destroy() error {
	return m.conn.mapDestroy(m.name)
}
