// Package config loads the HCL job file that tells an append run where the
// stage contributions, the reach index and the versioned results live.
//
// A job file looks like:
//
//	result_store "s3" {
//	  bucket = "confluence-results"
//	  prefix = "sos"
//	}
//
//	module_store "s3" {
//	  bucket = "confluence-modules"
//	}
//
//	index {
//	  key = "index/${continent}.json"
//	}
//
//	contribution {
//	  key         = "${module}/${run_type}/${continent}.json"
//	  concurrency = 4
//	}
//
//	commit {
//	  max_attempts   = 5
//	  dangling_after = "10m"
//	}
//
//	notify {
//	  url = "https://events.example.org/socket.io/"
//	}
//
//	attributes = {
//	  institution = "confluence"
//	}
//
// Every block is optional. Without a job file both stores are bbolt files
// under ./data.
package config
