// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/fieldverify/cmd/fieldverify/cli"
	"github.com/bureau-foundation/fieldverify/lib/qrscan"
)

const testSchedule = `{
  "jobs": [
    {"id": "job-1", "location": "Depot 4", "address": "12 Mill Rd", "waste_type": "general",
     "scheduled_date": "2026-10-14", "expected_token": "QR-0001", "urgent": true},
    {"id": "job-2", "location": "School", "address": "3 Elm St", "waste_type": "recycling",
     "scheduled_date": "2026-10-14", "expected_token": "QR-0002"},
    {"id": "job-3", "location": "Market", "address": "1 Square", "waste_type": "organic",
     "scheduled_date": "2026-10-15", "expected_token": "QR-0003"},
  ],
}`

type testDevice struct {
	t      *testing.T
	dir    string
	config string
}

func newTestDevice(t *testing.T) *testDevice {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "fieldverify.yaml")
	content := "environment: development\npaths:\n  root: " + filepath.Join(dir, "device") + "\nbackend:\n  dry_run: true\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "schedule.jsonc"), []byte(testSchedule), 0o644); err != nil {
		t.Fatal(err)
	}
	return &testDevice{t: t, dir: dir, config: configPath}
}

// run executes a command against the test device and returns stdout.
func (d *testDevice) run(args ...string) (string, error) {
	d.t.Helper()
	var stdout bytes.Buffer
	args = append(args, "--config", d.config)
	err := Root(&stdout).Execute(args)
	return stdout.String(), err
}

func (d *testDevice) mustRun(args ...string) string {
	d.t.Helper()
	output, err := d.run(args...)
	if err != nil {
		d.t.Fatalf("%s: %v\noutput:\n%s", strings.Join(args, " "), err, output)
	}
	return output
}

// qrImage writes a PNG encoding payload and returns its path.
func (d *testDevice) qrImage(payload string) string {
	d.t.Helper()
	image, err := qrscan.Render(payload, 256)
	if err != nil {
		d.t.Fatalf("Render: %v", err)
	}
	path := filepath.Join(d.dir, payload+".png")
	file, err := os.Create(path)
	if err != nil {
		d.t.Fatal(err)
	}
	defer file.Close()
	if err := png.Encode(file, image); err != nil {
		d.t.Fatal(err)
	}
	return path
}

func requireContains(t *testing.T, output string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestScanOnlineThenOfflineThenSync(t *testing.T) {
	device := newTestDevice(t)
	requireContains(t, device.mustRun("seed", "--file", filepath.Join(device.dir, "schedule.jsonc")), "seeded 3 jobs")

	badge := filepath.Join(device.dir, "job-1-badge.png")
	requireContains(t, device.mustRun("badge", "--job", "job-1", "--out", badge, "--size", "256"), "wrote job-1 badge")

	output := device.mustRun("scan", "--job", "job-1", "--image", badge)
	requireContains(t, output, "job-1 completed and synced")

	output = device.mustRun("scan", "--job", "job-2", "--image", device.qrImage("QR-0002"), "--offline")
	requireContains(t, output, "job-2 completed offline, queued as")

	output = device.mustRun("queue", "--payloads")
	requireContains(t, output, "complete-job", "job-2", `"QR-0002"`)

	output = device.mustRun("jobs", "--date", "2026-10-14")
	requireContains(t, output, "job-1", "job-2", "completed", "pending", "urgent")
	if strings.Contains(output, "job-3") {
		t.Errorf("jobs --date listed a job from another day:\n%s", output)
	}

	// The schedule can't be replaced while mutations are queued.
	_, err := device.run("seed", "--file", filepath.Join(device.dir, "schedule.jsonc"))
	if err == nil || !strings.Contains(err.Error(), "queued mutations") {
		t.Errorf("seed with a non-empty queue: %v", err)
	}

	requireContains(t, device.mustRun("sync"), "delivered 1, 0 remaining")
	requireContains(t, device.mustRun("queue"), "queue is empty")

	output = device.mustRun("jobs", "--date", "2026-10-14")
	if strings.Contains(output, "pending") {
		t.Errorf("a job is still pending after sync:\n%s", output)
	}
}

func TestScanMismatchExitsWithoutCompleting(t *testing.T) {
	device := newTestDevice(t)
	device.mustRun("seed", "--file", filepath.Join(device.dir, "schedule.jsonc"))

	output, err := device.run("scan", "--job", "job-2", "--image", device.qrImage("QR-0001"), "--timeout", "300ms")
	var exitError *cli.ExitError
	if !errors.As(err, &exitError) || exitError.Code != exitNoMatch {
		t.Fatalf("scan error = %v, want exit code %d", err, exitNoMatch)
	}
	requireContains(t, output, `code "QR-0001" does not match job-2`, "job-2 not completed")

	requireContains(t, device.mustRun("queue"), "queue is empty")
}

func TestProofSubmitOfflineAndVerify(t *testing.T) {
	device := newTestDevice(t)
	device.mustRun("seed", "--file", filepath.Join(device.dir, "schedule.jsonc"))

	output := device.mustRun("proof", "submit", "--job", "job-3", "--image", device.qrImage("site-photo"), "--offline")
	requireContains(t, output, "verdict: clean (offline — manual review)", "photo blake3:", "job-3 completed offline")

	requireContains(t, device.mustRun("proof", "verify", "--job", "job-3"), "job-3: blake3:", "verified")
	requireContains(t, device.mustRun("jobs", "--all"), "photo")
}

func TestProofSubmitOnlineWithoutAI(t *testing.T) {
	device := newTestDevice(t)
	device.mustRun("seed", "--file", filepath.Join(device.dir, "schedule.jsonc"))

	output := device.mustRun("proof", "submit", "--job", "job-1", "--image", device.qrImage("site-photo"))
	requireContains(t, output, "verdict: clean (AI unavailable)", "job-1 completed and synced")
}

func TestSpecialCollection(t *testing.T) {
	device := newTestDevice(t)

	output := device.mustRun("special", "--client", "c-17", "--waste-type", "metal",
		"--weight", "2.5", "--unit-price", "2", "--offline")
	requireContains(t, output, "total 5.00, 5 points", "queued as")

	_, err := device.run("special", "--client", "c-17", "--waste-type", "metal", "--weight", "-1", "--unit-price", "2")
	if err == nil {
		t.Error("negative weight accepted")
	}

	output = device.mustRun("special", "--list")
	requireContains(t, output, "c-17", "metal", "5.00", "pending")
}

func TestSyncNothingQueued(t *testing.T) {
	device := newTestDevice(t)
	requireContains(t, device.mustRun("sync"), "delivered 0, 0 remaining")
}

func TestScanUnknownJob(t *testing.T) {
	device := newTestDevice(t)
	_, err := device.run("scan", "--job", "nope", "--image", device.qrImage("QR-0001"))
	if err == nil || !strings.Contains(err.Error(), "job not found") {
		t.Errorf("scan of unknown job: %v", err)
	}
}
