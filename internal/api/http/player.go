package apihttp

// playerHTML is the minimal player page served at the media root. It points
// the video element at /video and polls /subtitles so tracks fetched after
// page load still appear.
const playerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>magnetcast</title>
<style>
  html, body { margin: 0; height: 100%; background: #000; }
  video { width: 100%; height: 100%; object-fit: contain; }
</style>
</head>
<body>
<video id="player" controls autoplay crossorigin="anonymous">
  <source src="/video">
</video>
<script>
(function () {
  var video = document.getElementById('player');
  var known = {};
  function refreshSubtitles() {
    fetch('/subtitles').then(function (res) { return res.json(); }).then(function (subs) {
      subs.forEach(function (sub) {
        if (known[sub.url]) return;
        known[sub.url] = true;
        var track = document.createElement('track');
        track.kind = 'subtitles';
        track.label = sub.label;
        track.srclang = sub.language;
        track.src = sub.url;
        video.appendChild(track);
      });
    }).catch(function () {});
  }
  refreshSubtitles();
  var polls = 0;
  var timer = setInterval(function () {
    refreshSubtitles();
    if (++polls >= 12) clearInterval(timer);
  }, 10000);
})();
</script>
</body>
</html>
`
