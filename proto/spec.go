package proto

// SpecKind discriminates the shapes a command specification can take.
// Configuration expresses commands as a free-form tree (bare names,
// {opcode: arg} mappings, nested lists); each shape gets a variant here.
type SpecKind int

const (
	// KindOp encodes a bare opcode name with no arguments: "MEM" -> [MEM].
	KindOp SpecKind = iota
	// KindOpInt encodes {opcode: int} -> [opcode, int].
	KindOpInt
	// KindOpBytes encodes {opcode: [item, ...]}, items int or string,
	// concatenated in order -> [opcode, ...bytes...].
	KindOpBytes
	// KindOpMap encodes {opcode: {sub: val, ...}}, one packet per sub/val
	// pair -> [opcode, sub, val] for each entry (used by CONFIG).
	KindOpMap
	// KindScene encodes {opcode: "name"} where the argument names a scene
	// in the destination node's lights table (LIGHT-capable nodes only).
	KindScene
	// KindSeq is an ordered list of the above, expanded in order.
	KindSeq
)

// Item is a single element of a KindOpBytes argument list: either a raw
// byte value or a UTF-8 string to be byte-concatenated.
type Item struct {
	IsString bool
	Str      string
	Byte     byte
}

// IntItem constructs a numeric Item.
func IntItem(v byte) Item { return Item{Byte: v} }

// StrItem constructs a string Item.
func StrItem(v string) Item { return Item{IsString: true, Str: v} }

// MapEntry is one sub-opcode/value pair of a KindOpMap spec.
type MapEntry struct {
	Sub string
	Val byte
}

// Spec is the tagged union of command shapes. Exactly one set of fields
// is meaningful, selected by Kind.
type Spec struct {
	Kind   SpecKind
	Opcode string
	Int    byte
	Items  []Item
	Map    []MapEntry
	Scene  string
	Seq    []Spec
}

// Op builds a bare-opcode spec, e.g. Op("MEM").
func Op(opcode string) Spec { return Spec{Kind: KindOp, Opcode: opcode} }

// OpInt builds a single-int-argument spec, e.g. OpInt("BINARY_OUT", 5).
func OpInt(opcode string, v byte) Spec { return Spec{Kind: KindOpInt, Opcode: opcode, Int: v} }

// OpBytes builds a byte/string-list-argument spec.
func OpBytes(opcode string, items ...Item) Spec {
	return Spec{Kind: KindOpBytes, Opcode: opcode, Items: items}
}

// OpMap builds a nested-opcode spec (CONFIG's sub-opcode/value pairs).
func OpMap(opcode string, entries ...MapEntry) Spec {
	return Spec{Kind: KindOpMap, Opcode: opcode, Map: entries}
}

// Scene builds a lighting-scene-name spec, e.g. Scene("LIGHT", "allOn").
func Scene(opcode, name string) Spec {
	return Spec{Kind: KindScene, Opcode: opcode, Scene: name}
}

// Seq builds an ordered sequence of specs.
func Seq(specs ...Spec) Spec { return Spec{Kind: KindSeq, Seq: specs} }
