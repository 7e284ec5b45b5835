// Package loadsense samples host CPU and GPU utilization for the admission
// controller.
//
// CPU usage is computed from /proc/stat deltas via prometheus/procfs. GPU
// usage comes from nvidia-smi; hosts without it report the GPU as
// unavailable rather than failing.
package loadsense
