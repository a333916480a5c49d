package metrics

// ServiceRecorder adapts a Manager to the app.Recorder port.
type ServiceRecorder struct{ M *Manager }

// ShareCreated counts an accepted upload and observes its size.
func (r ServiceRecorder) ShareCreated(sizeBytes int64) {
	r.M.Inc(CounterSharesCreated, 1)
	r.M.Observe(SummaryUploadBytes, sizeBytes)
}

// DownloadServed counts a consumed download slot.
func (r ServiceRecorder) DownloadServed() {
	r.M.Inc(CounterDownloads, 1)
}
