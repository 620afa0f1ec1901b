// Package scanning provides the concurrent TCP connect scanning engine for portsniffer.
//
// A scan probes every port of an immutable port set on a single target using a
// fixed pool of workers. Ports are partitioned statically: worker i of N visits
// the indices i, i+N, i+2N, ... so the union of all workers covers each index
// exactly once and no coordination is needed to hand out work.
//
// # Main Components
//
//   - Job: the immutable description of a scan (target, ports, workers, timeout)
//   - Coordinator: validates a job, spawns the workers and returns a Scan handle
//   - Scan: waits for completion or cancellation and produces an Outcome
//   - Outcome: the sorted open ports and the scanned/open/closed counters
//
// # Cancellation
//
// A scan is stopped cooperatively through a single flag. Scan.Cancel sets it at
// most once; workers check it before each probe and again before publishing a
// result. Scan.Wait returns a partial Outcome as soon as its context is done,
// without waiting for in-flight probes to finish. A probe that was in flight
// when the flag was set is discarded, so the partial counters always satisfy
// Open + Closed == Scanned and len(OpenPorts) == Open.
//
// # Usage
//
//	prober := probe.NewTCPProber(3 * time.Second)
//	job, err := scanning.NewJob(target, set, 10, 3*time.Second)
//	if err != nil {
//		return err
//	}
//	outcome, err := scanning.NewCoordinator(prober).Run(ctx, job)
//
// Progress snapshots and per-port metrics are reported through the optional
// ProgressSink and MetricsRecorder collaborators.
package scanning
