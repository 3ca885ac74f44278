package models

// Normalized raw field names (see FieldKey).
const (
	FieldPidHash       = "pidhash"
	FieldParentPidHash = "parentpidhash"
	FieldHostname      = "hostname"
	FieldPID           = "pid"
	FieldParentPID     = "parentpid"
	FieldProcessName   = "processname"
	FieldProcessPath   = "processpath"
	FieldProcessArgs   = "processargs"
	FieldUserName      = "username"
	FieldMD5           = "md5"
	FieldSHA2          = "sha2"
	FieldActivityType  = "activitytype"
	FieldEventTime     = "eventtime"

	FieldExitCode               = "exitcode"
	FieldCPUCycleCount          = "cpucyclecount"
	FieldCPUUtilization         = "cpuutilization"
	FieldCommitCharge           = "commitcharge"
	FieldCommitPeak             = "commitpeak"
	FieldReadOperationCount     = "readoperationcount"
	FieldWriteOperationCount    = "writeoperationcount"
	FieldReadTransferKiloBytes  = "readtransferkilobytes"
	FieldWriteTransferKiloBytes = "writetransferkilobytes"
	FieldHardFaultCount         = "hardfaultcount"
	FieldTokenElevationType     = "tokenelevationtype"

	FieldProtocol          = "protocol"
	FieldLocalIPAddr       = "localipaddr"
	FieldLocalPort         = "localport"
	FieldRemoteIPAddr      = "remoteipaddr"
	FieldRemotePort        = "remoteport"
	FieldPacketSize        = "packetsize"
	FieldEventCount        = "eventcount"
	FieldMinPacketSize     = "minpacketsize"
	FieldMaxPacketSize     = "maxpacketsize"
	FieldPacketSizeSquared = "packetsizesquared"

	FieldFilename       = "filename"
	FieldBytesRequested = "bytesrequested"
	FieldRegPath        = "regpath"
)

// NumericFields lists, per domain, the fields normalized to Number at ingestion.
var NumericFields = map[Domain][]string{
	DomainProcess: {FieldPID, FieldParentPID, FieldEventTime},
	DomainProcessStop: {
		FieldEventTime, FieldExitCode, FieldCPUCycleCount, FieldCPUUtilization,
		FieldCommitCharge, FieldCommitPeak, FieldReadOperationCount,
		FieldWriteOperationCount, FieldReadTransferKiloBytes,
		FieldWriteTransferKiloBytes, FieldHardFaultCount, FieldTokenElevationType,
	},
	DomainConnIncr: {
		FieldEventTime, FieldLocalPort, FieldRemotePort, FieldPacketSize,
		FieldEventCount, FieldMinPacketSize, FieldMaxPacketSize, FieldPacketSizeSquared,
	},
	DomainFile:      {FieldEventTime, FieldBytesRequested, FieldEventCount},
	DomainRegistry:  {FieldEventTime, FieldEventCount},
	DomainImageLoad: {FieldEventTime, FieldEventCount},
}
