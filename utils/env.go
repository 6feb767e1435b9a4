package utils

import "os"

var (
	CONFIG_PATH = os.Getenv("CONFIG_PATH")
	DATA_DIR    = GetEnvOrDefault("DATA_DIR", "adaptree_data")

	CRDB_DSN       = os.Getenv("CRDB_DSN")
	RUN_MIGRATIONS = os.Getenv("RUN_MIGRATIONS") == "1"
	SQLITE_PATH = GetEnvOrDefault("SQLITE_PATH", "adaptree.db")

	AWS_ACCESS_KEY_ID     = os.Getenv("AWS_ACCESS_KEY_ID")
	AWS_SECRET_ACCESS_KEY = os.Getenv("AWS_SECRET_ACCESS_KEY")
	AWS_DEFAULT_REGION    = GetEnvOrDefault("AWS_DEFAULT_REGION", "us-east-1")

	S3_BUCKET_NAME = os.Getenv("S3_BUCKET_NAME")
	S3_ENDPOINT    = os.Getenv("S3_ENDPOINT")
)
