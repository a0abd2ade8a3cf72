package metadata_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nasa-jpl/scanctl/coords"
	"github.com/nasa-jpl/scanctl/metadata"
)

func samplePosition() metadata.Position {
	return metadata.Position{
		World:  coords.Cartesian{X: 12.5, Y: -3.25, Z: 60},
		Orient: coords.Euler{Omega: 0, Phi: 5, Kappa: 90},
		CamID:  "0",
	}
}

func TestWriteXMPContainsUnitsAndCoordinateSystem(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := metadata.WriteXMP(buf, samplePosition()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"local1 - Euclidean", "millimeter", "degree", "xcr:Position", "xcr:Rotation"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected xmp output to contain %q", want)
		}
	}
}

func TestWriteManifestRealityCapture(t *testing.T) {
	buf := new(bytes.Buffer)
	recs := []metadata.ManifestRecord{
		{Filename: "img_0001.jpg", Position: samplePosition()},
	}
	if err := metadata.WriteManifest(buf, metadata.RealityCapture, recs); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 record, got %d lines", len(lines))
	}
	fields := strings.Fields(lines[1])
	if len(fields) != 7 {
		t.Fatalf("expected filename + 6 numeric fields, got %d: %v", len(fields), fields)
	}
	if fields[0] != "img_0001.jpg" {
		t.Errorf("expected filename first, got %s", fields[0])
	}
}

func TestWriteManifestMeshroom(t *testing.T) {
	buf := new(bytes.Buffer)
	recs := []metadata.ManifestRecord{
		{Filename: "img_0001.jpg", Position: samplePosition()},
	}
	if err := metadata.WriteManifest(buf, metadata.Meshroom, recs); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	fields := strings.Fields(lines[1])
	if len(fields) != 4 {
		t.Fatalf("expected filename + 3 numeric fields for meshroom form, got %d: %v", len(fields), fields)
	}
}
