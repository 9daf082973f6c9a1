// Code generated by dependgen — DO NOT EDIT.
package connection_test

import "github.com/srgg/testify/depend"

var MachineTestSuiteTestRegistry = map[string]func(any){
	"TestConnectReachesReady": func(s any) { s.(*MachineTestSuite).TestConnectReachesReady() },
	"TestConnectWhileReadyIsNoOp": func(s any) { s.(*MachineTestSuite).TestConnectWhileReadyIsNoOp() },
	"TestConnectWhileConnectingIsNoOp": func(s any) { s.(*MachineTestSuite).TestConnectWhileConnectingIsNoOp() },
	"TestConnectFailureReportsOnce": func(s any) { s.(*MachineTestSuite).TestConnectFailureReportsOnce() },
	"TestConnectCallError": func(s any) { s.(*MachineTestSuite).TestConnectCallError() },
	"TestConnectCallErrorKeepsConnectionState": func(s any) { s.(*MachineTestSuite).TestConnectCallErrorKeepsConnectionState() },
	"TestMtuRejectionStillReady": func(s any) { s.(*MachineTestSuite).TestMtuRejectionStillReady() },
	"TestMtuTimeoutStillReady": func(s any) { s.(*MachineTestSuite).TestMtuTimeoutStillReady() },
	"TestServiceDiscoveryFailure": func(s any) { s.(*MachineTestSuite).TestServiceDiscoveryFailure() },
	"TestDisconnect": func(s any) { s.(*MachineTestSuite).TestDisconnect() },
	"TestDisconnectWhenNotConnected": func(s any) { s.(*MachineTestSuite).TestDisconnectWhenNotConnected() },
	"TestUnexpectedDisconnect": func(s any) { s.(*MachineTestSuite).TestUnexpectedDisconnect() },
	"TestStaleCallbacksIgnored": func(s any) { s.(*MachineTestSuite).TestStaleCallbacksIgnored() },
	"TestOperationsRequireReady": func(s any) { s.(*MachineTestSuite).TestOperationsRequireReady() },
	"TestReadCharacteristic": func(s any) { s.(*MachineTestSuite).TestReadCharacteristic() },
	"TestWriteTypeFromProperties": func(s any) { s.(*MachineTestSuite).TestWriteTypeFromProperties() },
	"TestWriteStatusIsSurfaced": func(s any) { s.(*MachineTestSuite).TestWriteStatusIsSurfaced() },
	"TestEnableNotificationsPrefersIndication": func(s any) { s.(*MachineTestSuite).TestEnableNotificationsPrefersIndication() },
	"TestClientConfigMismatchIsWarned": func(s any) { s.(*MachineTestSuite).TestClientConfigMismatchIsWarned() },
	"TestNotificationsArePublished": func(s any) { s.(*MachineTestSuite).TestNotificationsArePublished() },
	"TestRequestMTU": func(s any) { s.(*MachineTestSuite).TestRequestMTU() },
	"TestWaitReady": func(s any) { s.(*MachineTestSuite).TestWaitReady() },
}

var MachineTestSuiteTestOrder = []string{
	"TestConnectReachesReady",
	"TestConnectWhileReadyIsNoOp",
	"TestConnectWhileConnectingIsNoOp",
	"TestConnectFailureReportsOnce",
	"TestConnectCallError",
	"TestConnectCallErrorKeepsConnectionState",
	"TestMtuRejectionStillReady",
	"TestMtuTimeoutStillReady",
	"TestServiceDiscoveryFailure",
	"TestDisconnect",
	"TestDisconnectWhenNotConnected",
	"TestUnexpectedDisconnect",
	"TestStaleCallbacksIgnored",
	"TestOperationsRequireReady",
	"TestReadCharacteristic",
	"TestWriteTypeFromProperties",
	"TestWriteStatusIsSurfaced",
	"TestEnableNotificationsPrefersIndication",
	"TestClientConfigMismatchIsWarned",
	"TestNotificationsArePublished",
	"TestRequestMTU",
	"TestWaitReady",
}

var MachineTestSuiteDependencies = depend.Depends(func(s any) *depend.Dep {
	dep := new(depend.Dep)
	dep.On("TestDisconnect", "TestConnectReachesReady")
	dep.On("TestReadCharacteristic", "TestConnectReachesReady")
	dep.On("TestWriteTypeFromProperties", "TestConnectReachesReady")
	dep.On("TestClientConfigMismatchIsWarned", "TestConnectReachesReady")
	dep.On("TestRequestMTU", "TestConnectReachesReady")
	return dep
})

// GeneratedDependConfig returns the dependency configuration for MachineTestSuite.
// This method allows MachineTestSuite to be used with depend.RunSuite(t, suite).
// DO NOT implement this method manually - it is auto-generated.
func (s *MachineTestSuite) GeneratedDependConfig() *depend.SuiteConfig {
	return &depend.SuiteConfig{
		Registry: MachineTestSuiteTestRegistry,
		Order:    MachineTestSuiteTestOrder,
		Deps:     MachineTestSuiteDependencies,
	}
}
