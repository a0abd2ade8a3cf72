package metadata

import (
	"fmt"
	"io"
	"text/template"
)

// xmpTemplate renders the custom xcr: namespace sidecar block described in
// spec.md §6: Position and Rotation as rdf:Seq triples, with explicit
// units and the "local1 - Euclidean" coordinate-system label. A five-field
// custom-namespace block does not warrant pulling in a general XML
// library; text/template mirrors the fixed structure directly, the one
// ambient-concern exception recorded in DESIGN.md.
const xmpTemplate = `<?xpacket begin="﻿" id="W5M0MpCehiHzreSzNTczkc9d"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/">
  <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
    <rdf:Description rdf:about=""
        xmlns:xcr="http://www.capturingreality.com/ns/xcr/1.1#"
        xcr:Version="3"
        xcr:PosePrior="locked"
        xcr:Coordinates="local"
        xcr:CoordinateSystem="local1 - Euclidean"
        xcr:DistanceUnit="millimeter"
        xcr:AngularUnit="degree">
      <xcr:Position>
        <rdf:Seq>
          <rdf:li>{{printf "%.6f" .X}}</rdf:li>
          <rdf:li>{{printf "%.6f" .Y}}</rdf:li>
          <rdf:li>{{printf "%.6f" .Z}}</rdf:li>
        </rdf:Seq>
      </xcr:Position>
      <xcr:Rotation>
        <rdf:Seq>
          <rdf:li>{{printf "%.6f" .Omega}}</rdf:li>
          <rdf:li>{{printf "%.6f" .Phi}}</rdf:li>
          <rdf:li>{{printf "%.6f" .Kappa}}</rdf:li>
        </rdf:Seq>
      </xcr:Rotation>
    </rdf:Description>
  </rdf:RDF>
</x:xmpmeta>
<?xpacket end="w"?>
`

var xmpTmpl = template.Must(template.New("xmp").Parse(xmpTemplate))

type xmpFields struct {
	X, Y, Z           float64
	Omega, Phi, Kappa float64
}

// WriteXMP renders the XMP sidecar for one captured image's position and
// orientation.
func WriteXMP(w io.Writer, p Position) error {
	f := xmpFields{
		X: p.World.X, Y: p.World.Y, Z: p.World.Z,
		Omega: p.Orient.Omega, Phi: p.Orient.Phi, Kappa: p.Orient.Kappa,
	}
	return xmpTmpl.Execute(w, f)
}

// ManifestForm selects the camera-positions text manifest dialect.
type ManifestForm int

const (
	// RealityCapture form: "filename X Y Z omega phi kappa".
	RealityCapture ManifestForm = iota
	// Meshroom form: "filename X Y Z" only.
	Meshroom
)

// ManifestRecord is one line of a camera-positions manifest.
type ManifestRecord struct {
	Filename string
	Position Position
}

// WriteManifest writes one record per line in the selected dialect,
// UTF-8, whitespace-separated, with a leading comment header.
func WriteManifest(w io.Writer, form ManifestForm, records []ManifestRecord) error {
	header := "# filename X Y Z\n"
	if form == RealityCapture {
		header = "# filename X Y Z omega phi kappa\n"
	}
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	for _, r := range records {
		p := r.Position
		var line string
		switch form {
		case RealityCapture:
			line = fmt.Sprintf("%s %.6f %.6f %.6f %.6f %.6f %.6f\n",
				r.Filename, p.World.X, p.World.Y, p.World.Z, p.Orient.Omega, p.Orient.Phi, p.Orient.Kappa)
		default:
			line = fmt.Sprintf("%s %.6f %.6f %.6f\n", r.Filename, p.World.X, p.World.Y, p.World.Z)
		}
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return nil
}
