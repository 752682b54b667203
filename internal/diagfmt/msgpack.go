package diagfmt

import (
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack writes the JSON output model as MessagePack, reusing its json tags
// as field names so both encodings share one schema.
func Msgpack(w io.Writer, reports []FileReport, opts JSONOpts) error {
	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	return enc.Encode(BuildOutput(reports, opts))
}

// DecodeMsgpack reads output written by Msgpack.
func DecodeMsgpack(r io.Reader) (DiagnosticsOutput, error) {
	var out DiagnosticsOutput
	dec := msgpack.NewDecoder(r)
	dec.SetCustomStructTag("json")
	if err := dec.Decode(&out); err != nil {
		return DiagnosticsOutput{}, err
	}
	return out, nil
}
