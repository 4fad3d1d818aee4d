// Package demux drives PSI/SI and SCTE-35 extraction from a transport
// stream. A [Session] decodes each packet, offers it to the stream
// monitor, reassembles sections on the PIDs it has routes for, validates
// and decodes them, and notifies its observers.
//
// Routes start with the well-known PIDs (PAT, CAT, NIT, SDT/BAT, EIT,
// MIP) and grow as the PAT and PMTs announce PMT, network, SCTE-35 and
// AIT PIDs. A Session is single-goroutine on its processing path; its
// Snapshot may be taken from any goroutine.
package demux
