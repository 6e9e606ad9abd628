// Package config provides configuration parsing for the jobtrail server.
//
// The configuration is stored in jobtrail.json. Every field is optional;
// missing fields take the defaults from New.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "host": "0.0.0.0",
//	    "port": 8080,
//	    "shutdownTimeout": "10s"
//	  },
//	  "api": {
//	    "baseURL": "http://localhost:4000",
//	    "timeout": "60s"
//	  },
//	  "session": {
//	    "searchDebounce": "700ms",
//	    "pageSize": 50,
//	    "idleTimeout": "30m"
//	  },
//	  "export": {
//	    "driver": "s3",
//	    "bucket": "jobtrail-drafts",
//	    "prefix": "exports",
//	    "endpoint": "http://localhost:9000",
//	    "pathStyle": true
//	  },
//	  "log": {
//	    "level": "info",
//	    "format": "json"
//	  }
//	}
//
// JOBTRAIL_API_BASE_URL, JOBTRAIL_LISTEN and JOBTRAIL_LOG_LEVEL override
// the file when set.
//
// # Usage
//
//	cfg, err := config.LoadOrDefault(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg.ApplyEnv()
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Listening on", cfg.Address())
package config
