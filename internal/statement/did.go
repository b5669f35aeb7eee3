package statement

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/provgraph/internal/cid"
	"github.com/roach88/provgraph/internal/errs"
)

// Verified-computing attestation types carried in "vcomp.@type".
const (
	VCompAmdSevV1   = "EqtyVCompAmdSevV1"
	VCompDockerV1   = "EqtyVCompDockerV1"
	VCompCustomV1   = "EqtyVCompCustomV1"
	VCompIntelTdxV0 = "EqtyVCompIntelTdxV0"
	VCompAzureV1    = "EqtyVCompAzureV1"

	// DidRegular names a Did statement with no attestation.
	DidRegular = "Regular"
)

// Did registers a decentralized identifier, optionally with evidence about
// the verified computing environment it runs in.
type Did struct {
	Header
	DID   string `json:"did"`
	VComp VComp  `json:"vcomp,omitempty"`
}

func (*Did) Kind() Kind { return KindDid }
func (*Did) isStatement() {}

// ReferencedIdentifiers returns the artifact identifiers named by the
// attestation. A regular Did references nothing.
func (s *Did) ReferencedIdentifiers() []string {
	if s.VComp == nil {
		return nil
	}
	return s.VComp.referencedIdentifiers()
}

// Variant returns the attestation type, or "Regular".
func (s *Did) Variant() string {
	if s.VComp == nil {
		return DidRegular
	}
	return s.VComp.VCompType()
}

// IndexType is the type recorded for indexing: the attestation type, or
// "DidRegistration" for a regular Did.
func (s *Did) IndexType() string {
	if s.VComp == nil {
		return TypeDid
	}
	return s.VComp.VCompType()
}

// UnmarshalJSON picks the attestation variant from "vcomp.@type".
func (s *Did) UnmarshalJSON(data []byte) error {
	type plain struct {
		Header
		DID   string          `json:"did"`
		VComp json.RawMessage `json:"vcomp"`
	}
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return didError(DidRegular, err)
	}

	variant := DidRegular
	var vcomp VComp
	if len(p.VComp) > 0 && !bytes.Equal(p.VComp, []byte("null")) {
		var probe struct {
			Type *string `json:"@type"`
		}
		if err := json.Unmarshal(p.VComp, &probe); err != nil {
			return didError(variant, err)
		}
		if probe.Type == nil {
			return errs.NewMalformed("missing field `@type in vcomp`")
		}
		variant = *probe.Type
		v, err := decodeVComp(variant, p.VComp)
		if err != nil {
			return err
		}
		vcomp = v
	}
	if p.DID == "" {
		return didError(variant, fmt.Errorf("missing field `did`"))
	}

	*s = Did{Header: p.Header, DID: p.DID, VComp: vcomp}
	return nil
}

func didError(variant string, err error) error {
	return errs.Wrap(errs.CodeMalformedStatement, err,
		"Failed to deserialize `%s` DidRegistration", variant)
}

func decodeVComp(variant string, raw json.RawMessage) (VComp, error) {
	var v VComp
	switch variant {
	case VCompAmdSevV1:
		v = &AmdSevV1{}
	case VCompDockerV1:
		v = &DockerV1{}
	case VCompCustomV1:
		v = &CustomV1{}
	case VCompIntelTdxV0:
		v = &IntelTdxV0{}
	case VCompAzureV1:
		v = &AzureV1{}
	default:
		return nil, errs.NewMalformed("Unknown vcomp type: %s", variant)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return nil, didError(variant, err)
	}
	if err := v.validate(); err != nil {
		return nil, didError(variant, err)
	}
	return v, nil
}

// VComp is verified computing evidence attached to a Did.
type VComp interface {
	VCompType() string
	referencedIdentifiers() []string
	validate() error
}

// Hex is a byte string encoded as lowercase hex in JSON.
type Hex []byte

// MarshalJSON implements json.Marshaler.
func (h Hex) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *Hex) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	*h = b
	return nil
}

func checkLen(field string, h Hex, n int) error {
	if len(h) != n {
		return fmt.Errorf("%s: expected %d bytes, got %d", field, n, len(h))
	}
	return nil
}

// DigestRef256 is an artifact identifier with its SHA-256 digest.
type DigestRef256 struct {
	ID     string `json:"@id"`
	SHA256 Hex    `json:"sha256"`
}

func (r *DigestRef256) check(field string) error {
	if r.ID == "" {
		return fmt.Errorf("%s: missing field `@id`", field)
	}
	return checkLen(field+".sha256", r.SHA256, 32)
}

// DigestRef384 is an artifact identifier with its SHA-384 digest.
type DigestRef384 struct {
	ID     string `json:"@id"`
	SHA384 Hex    `json:"sha384"`
}

func (r *DigestRef384) check(field string) error {
	if r.ID == "" {
		return fmt.Errorf("%s: missing field `@id`", field)
	}
	return checkLen(field+".sha384", r.SHA384, 48)
}

// checkRefs384 checks the non-nil refs, reporting the first failure.
func checkRefs384(fields []string, refs []*DigestRef384) error {
	for i, ref := range refs {
		if ref == nil {
			continue
		}
		if err := ref.check(fields[i]); err != nil {
			return err
		}
	}
	return nil
}

// AmdSevV1 is AMD SEV launch evidence.
type AmdSevV1 struct {
	Type            string            `json:"@type"`
	Measurement     Hex               `json:"measurement,omitempty"`
	MeasurementInfo AmdSevMeasurement `json:"measurementInfo"`
}

// AmdSevMeasurement describes the measured launch components.
type AmdSevMeasurement struct {
	SevMode     string       `json:"sevMode"`
	NumCPUCores uint32       `json:"numCpuCores"`
	CPUType     string       `json:"cpuType"`
	OVMF        DigestRef256 `json:"ovmf"`
	Kernel      DigestRef256 `json:"kernel"`
	Initrd      DigestRef256 `json:"initrd"`
	Append      DigestRef256 `json:"append"`
}

func (v *AmdSevV1) VCompType() string { return VCompAmdSevV1 }

func (v *AmdSevV1) referencedIdentifiers() []string {
	mi := v.MeasurementInfo
	return []string{mi.OVMF.ID, mi.Kernel.ID, mi.Initrd.ID, mi.Append.ID}
}

func (v *AmdSevV1) validate() error {
	if v.Measurement != nil {
		if err := checkLen("measurement", v.Measurement, 32); err != nil {
			return err
		}
	}
	mi := &v.MeasurementInfo
	if mi.SevMode == "" {
		return fmt.Errorf("missing field `sevMode`")
	}
	refs := []*DigestRef256{&mi.OVMF, &mi.Kernel, &mi.Initrd, &mi.Append}
	for i, field := range []string{"ovmf", "kernel", "initrd", "append"} {
		if err := refs[i].check(field); err != nil {
			return err
		}
	}
	return nil
}

// DockerV1 is evidence of a Docker composition.
type DockerV1 struct {
	Type       string        `json:"@type"`
	Image      []DockerImage `json:"image"`
	Compose    string        `json:"compose"`
	OperatedBy string        `json:"operatedBy"`
	ExecutedOn string        `json:"executedOn"`
}

// DockerImage is one image of the composition.
type DockerImage struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
}

func (v *DockerV1) VCompType() string { return VCompDockerV1 }

func (v *DockerV1) referencedIdentifiers() []string { return []string{v.Compose} }

func (v *DockerV1) validate() error {
	switch {
	case v.Image == nil:
		return fmt.Errorf("missing field `image`")
	case v.Compose == "":
		return fmt.Errorf("missing field `compose`")
	case v.OperatedBy == "":
		return fmt.Errorf("missing field `operatedBy`")
	case v.ExecutedOn == "":
		return fmt.Errorf("missing field `executedOn`")
	}
	return nil
}

// CustomV1 carries arbitrary attestation JSON.
type CustomV1 struct {
	Type  string `json:"@type"`
	Value any    `json:"value"`
}

func (v *CustomV1) VCompType() string { return VCompCustomV1 }

// referencedIdentifiers returns every "urn:cid:" string found in Value.
func (v *CustomV1) referencedIdentifiers() []string {
	var out []string
	collectCIDs(v.Value, &out)
	return out
}

func (v *CustomV1) validate() error { return nil }

func collectCIDs(v any, out *[]string) {
	switch x := v.(type) {
	case string:
		if strings.HasPrefix(x, cid.URNPrefix) {
			*out = append(*out, x)
		}
	case []any:
		for _, item := range x {
			collectCIDs(item, out)
		}
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectCIDs(x[k], out)
		}
	}
}

// IntelTdxV0 is Intel TDX evidence.
type IntelTdxV0 struct {
	Type            string              `json:"@type"`
	Measurement     []Hex               `json:"measurement,omitempty"`
	MeasurementInfo *IntelTdxMeasurement `json:"measurementInfo,omitempty"`
}

// IntelTdxMeasurement describes the optional measured components.
type IntelTdxMeasurement struct {
	OVMF   *DigestRef384 `json:"ovmf,omitempty"`
	Kernel *DigestRef384 `json:"kernel,omitempty"`
	Initrd *DigestRef384 `json:"initrd,omitempty"`
	Append *DigestRef384 `json:"append,omitempty"`
}

func (v *IntelTdxV0) VCompType() string { return VCompIntelTdxV0 }

func (v *IntelTdxV0) referencedIdentifiers() []string {
	if v.MeasurementInfo == nil {
		return nil
	}
	var out []string
	for _, ref := range []*DigestRef384{v.MeasurementInfo.OVMF, v.MeasurementInfo.Kernel, v.MeasurementInfo.Initrd, v.MeasurementInfo.Append} {
		if ref != nil {
			out = append(out, ref.ID)
		}
	}
	return out
}

func (v *IntelTdxV0) validate() error {
	for i, m := range v.Measurement {
		if err := checkLen(fmt.Sprintf("measurement[%d]", i), m, 48); err != nil {
			return err
		}
	}
	if mi := v.MeasurementInfo; mi != nil {
		if err := checkRefs384([]string{"ovmf", "kernel", "initrd", "append"},
			[]*DigestRef384{mi.OVMF, mi.Kernel, mi.Initrd, mi.Append}); err != nil {
			return err
		}
	}
	return nil
}

// AzureV1 is Azure confidential VM evidence.
type AzureV1 struct {
	Type            string            `json:"@type"`
	Measurement     *AzureMeasurement `json:"measurement,omitempty"`
	MeasurementInfo *AzureMeasurementInfo `json:"measurementInfo,omitempty"`
}

// AzureMeasurement holds TPM and firmware measurements.
type AzureMeasurement struct {
	PCR11    Hex `json:"pcr11,omitempty"`
	Firmware Hex `json:"firmware,omitempty"`
}

// AzureMeasurementInfo describes the optional measured components.
type AzureMeasurementInfo struct {
	UKI    string        `json:"uki,omitempty"`
	Kernel *DigestRef384 `json:"kernel,omitempty"`
	Initrd *DigestRef384 `json:"initrd,omitempty"`
	Append *DigestRef384 `json:"append,omitempty"`
	RootFS *DigestRef256 `json:"rootfs,omitempty"`
}

func (v *AzureV1) VCompType() string { return VCompAzureV1 }

func (v *AzureV1) referencedIdentifiers() []string {
	mi := v.MeasurementInfo
	if mi == nil {
		return nil
	}
	var out []string
	if mi.UKI != "" {
		out = append(out, mi.UKI)
	}
	for _, ref := range []*DigestRef384{mi.Kernel, mi.Initrd, mi.Append} {
		if ref != nil {
			out = append(out, ref.ID)
		}
	}
	if mi.RootFS != nil {
		out = append(out, mi.RootFS.ID)
	}
	return out
}

func (v *AzureV1) validate() error {
	mi := v.MeasurementInfo
	if mi == nil {
		return nil
	}
	if err := checkRefs384([]string{"kernel", "initrd", "append"},
		[]*DigestRef384{mi.Kernel, mi.Initrd, mi.Append}); err != nil {
		return err
	}
	if mi.RootFS != nil {
		return mi.RootFS.check("rootfs")
	}
	return nil
}
