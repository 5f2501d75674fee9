// Command prcast is the PRCast CLI. It runs the daemon, submits pull
// requests for episode production, and inspects the job queue and feeds.
package main
